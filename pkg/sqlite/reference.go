package sqlite

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/jakechorley/shift-roster/pkg/core/model"
)

// Reference is the HR, leave and configuration data a local database is
// seeded with. In production these tables belong to other subsystems.
type Reference struct {
	TenantID     string                  `yaml:"tenant"`
	Employees    []referenceEmployee     `yaml:"employees"`
	Teams        []referenceTeam         `yaml:"teams"`
	Templates    []referenceTemplate     `yaml:"templates"`
	Demand       []referenceDemand       `yaml:"demand"`
	Leave        []referenceLeave        `yaml:"leave"`
	Availability []referenceAvailability `yaml:"availability"`
	Rules        []referenceRule         `yaml:"rules"`
}

type referenceEmployee struct {
	ID     string   `yaml:"id"`
	Name   string   `yaml:"name"`
	Active *bool    `yaml:"active"`
	Skills []string `yaml:"skills"`
	Team   string   `yaml:"team"`
}

type referenceTeam struct {
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name"`
	Members []string `yaml:"members"`
}

type referenceTemplate struct {
	ID             string   `yaml:"id"`
	Name           string   `yaml:"name"`
	Start          string   `yaml:"start"`
	End            string   `yaml:"end"`
	Category       string   `yaml:"category"`
	Mode           string   `yaml:"mode"`
	RequiredSkills []string `yaml:"requiredSkills"`
}

type referenceDemand struct {
	Template string   `yaml:"template"`
	Weekdays []string `yaml:"weekdays"`
	Count    int      `yaml:"count"`
	Roles    []string `yaml:"roles"`
	From     string   `yaml:"from"`
	To       string   `yaml:"to"`
}

type referenceLeave struct {
	ID       string `yaml:"id"`
	Employee string `yaml:"employee"`
	Start    string `yaml:"start"`
	End      string `yaml:"end"`
}

type referenceAvailability struct {
	Employee    string `yaml:"employee"`
	Date        string `yaml:"date"`
	Kind        string `yaml:"kind"`
	Template    string `yaml:"template"`
	WindowStart string `yaml:"windowStart"`
	WindowEnd   string `yaml:"windowEnd"`
}

type referenceRule struct {
	ID     string         `yaml:"id"`
	Label  string         `yaml:"label"`
	Type   string         `yaml:"type"`
	Params map[string]any `yaml:"params"`
	Weight float64        `yaml:"weight"`
}

// LoadReference reads a reference data file
func LoadReference(path string) (*Reference, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read reference file: %w", err)
	}
	var ref Reference
	if err := yaml.Unmarshal(data, &ref); err != nil {
		return nil, fmt.Errorf("failed to parse reference file: %w", err)
	}
	if ref.TenantID == "" {
		return nil, fmt.Errorf("reference file %s has no tenant", path)
	}
	return &ref, nil
}

func parseWeekday(s string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if strings.EqualFold(s, name) || strings.EqualFold(s, name[:3]) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("invalid weekday %q", s)
}

func optionalDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	d, err := model.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func optionalClock(s string) (*int, error) {
	if s == "" {
		return nil, nil
	}
	c, err := model.ParseClock(s)
	if err != nil {
		return nil, err
	}
	minutes := int(c)
	return &minutes, nil
}

// ImportReference replaces the tenant's reference data with ref in one
// transaction. Schedules and scores are left untouched.
func (d *DB) ImportReference(ctx context.Context, ref *Reference) error {
	return d.gorm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tenant := ref.TenantID
		if err := clearReference(tx, tenant); err != nil {
			return err
		}

		for _, e := range ref.Employees {
			active := e.Active == nil || *e.Active
			row := employeeRow{ID: e.ID, TenantID: tenant, Name: e.Name, Active: active, Skills: e.Skills, TeamID: e.Team}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("failed to import employee %s: %w", e.ID, err)
			}
		}

		for _, t := range ref.Teams {
			if err := tx.Create(&teamRow{ID: t.ID, TenantID: tenant, Name: t.Name}).Error; err != nil {
				return fmt.Errorf("failed to import team %s: %w", t.ID, err)
			}
			for i, member := range t.Members {
				if err := tx.Create(&teamMemberRow{TeamID: t.ID, EmployeeID: member, Position: i}).Error; err != nil {
					return fmt.Errorf("failed to import member %s of team %s: %w", member, t.ID, err)
				}
			}
		}

		for _, t := range ref.Templates {
			start, err := model.ParseClock(t.Start)
			if err != nil {
				return fmt.Errorf("template %s: %w", t.ID, err)
			}
			end, err := model.ParseClock(t.End)
			if err != nil {
				return fmt.Errorf("template %s: %w", t.ID, err)
			}
			mode := t.Mode
			if mode == "" {
				mode = string(model.ModeEmployee)
			}
			row := shiftTemplateRow{
				ID: t.ID, TenantID: tenant, Name: t.Name,
				StartMinute: int(start), EndMinute: int(end) % (24 * 60),
				Category: t.Category, Mode: mode, RequiredSkills: t.RequiredSkills,
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("failed to import template %s: %w", t.ID, err)
			}
		}

		for i, dm := range ref.Demand {
			from, err := optionalDate(dm.From)
			if err != nil {
				return fmt.Errorf("demand for %s: %w", dm.Template, err)
			}
			to, err := optionalDate(dm.To)
			if err != nil {
				return fmt.Errorf("demand for %s: %w", dm.Template, err)
			}
			for _, name := range dm.Weekdays {
				weekday, err := parseWeekday(name)
				if err != nil {
					return fmt.Errorf("demand for %s: %w", dm.Template, err)
				}
				row := demandRow{
					ID:            fmt.Sprintf("%s:%s:%d:%d", tenant, dm.Template, weekday, i),
					TenantID:      tenant,
					TemplateID:    dm.Template,
					Weekday:       int(weekday),
					RequiredCount: dm.Count,
					RequiredRoles: dm.Roles,
					EffectiveFrom: from,
					EffectiveTo:   to,
					Position:      i,
				}
				if err := tx.Create(&row).Error; err != nil {
					return fmt.Errorf("failed to import demand for %s: %w", dm.Template, err)
				}
			}
		}

		for i, l := range ref.Leave {
			start, err := model.ParseDate(l.Start)
			if err != nil {
				return fmt.Errorf("leave for %s: %w", l.Employee, err)
			}
			end, err := model.ParseDate(l.End)
			if err != nil {
				return fmt.Errorf("leave for %s: %w", l.Employee, err)
			}
			id := l.ID
			if id == "" {
				id = fmt.Sprintf("%s:leave:%d", tenant, i)
			}
			row := leaveRow{ID: id, TenantID: tenant, EmployeeID: l.Employee, StartDate: start, EndDate: end, Status: "approved"}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("failed to import leave %s: %w", id, err)
			}
		}

		for i, a := range ref.Availability {
			date, err := model.ParseDate(a.Date)
			if err != nil {
				return fmt.Errorf("availability for %s: %w", a.Employee, err)
			}
			windowStart, err := optionalClock(a.WindowStart)
			if err != nil {
				return fmt.Errorf("availability for %s: %w", a.Employee, err)
			}
			windowEnd, err := optionalClock(a.WindowEnd)
			if err != nil {
				return fmt.Errorf("availability for %s: %w", a.Employee, err)
			}
			row := availabilityRow{
				ID:          fmt.Sprintf("%s:availability:%d", tenant, i),
				TenantID:    tenant,
				EmployeeID:  a.Employee,
				Date:        date,
				Kind:        a.Kind,
				TemplateID:  a.Template,
				WindowStart: windowStart,
				WindowEnd:   windowEnd,
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("failed to import availability for %s: %w", a.Employee, err)
			}
		}

		for i, r := range ref.Rules {
			weight := r.Weight
			if weight == 0 {
				weight = 1
			}
			row := ruleRow{ID: r.ID, TenantID: tenant, Label: r.Label, Type: r.Type, Params: r.Params, Weight: weight, Position: i}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("failed to import rule %s: %w", r.ID, err)
			}
		}
		return nil
	})
}

func clearReference(tx *gorm.DB, tenant string) error {
	var teamIDs []string
	if err := tx.Model(&teamRow{}).Where("tenant_id = ?", tenant).Pluck("id", &teamIDs).Error; err != nil {
		return fmt.Errorf("failed to query teams: %w", err)
	}
	if len(teamIDs) > 0 {
		if err := tx.Where("team_id IN ?", teamIDs).Delete(&teamMemberRow{}).Error; err != nil {
			return fmt.Errorf("failed to clear team members: %w", err)
		}
	}
	for _, m := range []any{&employeeRow{}, &teamRow{}, &shiftTemplateRow{}, &demandRow{}, &leaveRow{}, &availabilityRow{}, &ruleRow{}} {
		if err := tx.Where("tenant_id = ?", tenant).Delete(m).Error; err != nil {
			return fmt.Errorf("failed to clear reference data: %w", err)
		}
	}
	return nil
}
