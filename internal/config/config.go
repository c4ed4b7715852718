package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/teambition/rrule-go"
	"gopkg.in/yaml.v3"

	"github.com/jakechorley/shift-roster/pkg/core/allocator"
	"github.com/jakechorley/shift-roster/pkg/core/model"
	"github.com/jakechorley/shift-roster/pkg/core/rules"
	"github.com/jakechorley/shift-roster/pkg/core/services"
)

const configFileName = "roster_config.yaml"

// Storage drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Storage selects and locates the schedule store
type Storage struct {
	Driver      string `yaml:"driver" validate:"required,oneof=postgres sqlite"`
	DatabaseURL string `yaml:"databaseURL" validate:"required_if=Driver postgres"`
	SQLitePath  string `yaml:"sqlitePath" validate:"required_if=Driver sqlite"`
}

type Server struct {
	Addr string `yaml:"addr" validate:"required"`
}

type Logging struct {
	Dir string `yaml:"dir"`
}

// Limits are the hard scheduling limits applied when a tenant has no rule definitions
type Limits struct {
	MaxNightsPerWeek      int     `yaml:"maxNightsPerWeek" validate:"min=1,max=7"`
	MinRestHours          float64 `yaml:"minRestHours" validate:"min=0,max=48"`
	MaxConsecutiveDays    int     `yaml:"maxConsecutiveDays" validate:"min=1"`
	MaxConsecutiveNights  int     `yaml:"maxConsecutiveNights" validate:"min=1"`
	TeamBlackoutTolerance float64 `yaml:"teamBlackoutTolerance" validate:"min=0,max=1"`
}

// Weights are the soft rule weights applied when a tenant has no rule definitions
type Weights struct {
	PreferredAvailability float64 `yaml:"preferredAvailability" validate:"min=0"`
	ShiftTypeChanges      float64 `yaml:"shiftTypeChanges" validate:"min=0"`
	BalanceHours          float64 `yaml:"balanceHours" validate:"min=0"`
	ConsecutiveBlocks     float64 `yaml:"consecutiveBlocks" validate:"min=0"`
	SplitWeekend          float64 `yaml:"splitWeekend" validate:"min=0"`
}

type Scheduling struct {
	HistoryDays  int     `yaml:"historyDays" validate:"min=0,max=62"`
	ShuffleSlots bool    `yaml:"shuffleSlots"`
	Limits       Limits  `yaml:"limits"`
	Weights      Weights `yaml:"weights"`
}

type Backtracking struct {
	MaxIterations int           `yaml:"maxIterations" validate:"min=1"`
	Timeout       time.Duration `yaml:"timeout" validate:"min=0"`
}

type Annealing struct {
	Iterations         int           `yaml:"iterations" validate:"min=1"`
	InitialTemperature float64       `yaml:"initialTemperature" validate:"gt=0"`
	CoolingRate        float64       `yaml:"coolingRate" validate:"gt=0,lt=1"`
	MinTemperature     float64       `yaml:"minTemperature" validate:"gt=0"`
	Timeout            time.Duration `yaml:"timeout" validate:"min=0"`
}

type Algorithms struct {
	Backtracking Backtracking `yaml:"backtracking"`
	Annealing    Annealing    `yaml:"annealing"`
}

// Scoring configures ScoreRank's rolling fatigue scores
type Scoring struct {
	CategoryWeights    map[string]float64 `yaml:"categoryWeights" validate:"dive,keys,oneof=day evening night custom,endkeys,min=0"`
	TeamMemberFraction float64            `yaml:"teamMemberFraction" validate:"min=0,max=1"`
	DecayRate          float64            `yaml:"decayRate" validate:"min=0,max=1"`
	PreferenceBonus    float64            `yaml:"preferenceBonus" validate:"min=0"`
}

// BlackoutRule is a recurring closure, e.g. a public holiday, during which
// nobody is scheduled
type BlackoutRule struct {
	Name  string `yaml:"name"`
	RRule string `yaml:"rrule" validate:"required"`
}

// Config represents the application configuration
type Config struct {
	Storage       Storage        `yaml:"storage"`
	Server        Server         `yaml:"server"`
	Logging       Logging        `yaml:"logging"`
	Scheduling    Scheduling     `yaml:"scheduling"`
	Algorithms    Algorithms     `yaml:"algorithms"`
	Scoring       Scoring        `yaml:"scoring"`
	BlackoutRules []BlackoutRule `yaml:"blackoutRules,omitempty" validate:"dive"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Default returns the configuration used for any value a file leaves out
func Default() *Config {
	opts := services.DefaultRosterOptions()
	s := opts.Strategy

	weights := make(map[string]float64, len(s.Scoring.CategoryWeights))
	for c, w := range s.Scoring.CategoryWeights {
		weights[string(c)] = w
	}

	return &Config{
		Storage: Storage{Driver: DriverSQLite, SQLitePath: "roster.db"},
		Server:  Server{Addr: ":8080"},
		Logging: Logging{Dir: "logs"},
		Scheduling: Scheduling{
			HistoryDays:  opts.HistoryDays,
			ShuffleSlots: s.ShuffleSlots,
			Limits: Limits{
				MaxNightsPerWeek:      s.Limits.MaxNightsPerWeek,
				MinRestHours:          s.Limits.MinRestHours,
				MaxConsecutiveDays:    s.Limits.MaxConsecutiveDays,
				MaxConsecutiveNights:  s.Limits.MaxConsecutiveNights,
				TeamBlackoutTolerance: s.Limits.TeamBlackoutTolerance,
			},
			Weights: Weights{
				PreferredAvailability: opts.Weights.PreferredAvailability,
				ShiftTypeChanges:      opts.Weights.ShiftTypeChanges,
				BalanceHours:          opts.Weights.BalanceHours,
				ConsecutiveBlocks:     opts.Weights.ConsecutiveBlocks,
				SplitWeekend:          opts.Weights.SplitWeekend,
			},
		},
		Algorithms: Algorithms{
			Backtracking: Backtracking{
				MaxIterations: s.Backtracking.MaxIterations,
				Timeout:       s.Backtracking.Timeout,
			},
			Annealing: Annealing{
				Iterations:         s.Annealing.Iterations,
				InitialTemperature: s.Annealing.InitialTemperature,
				CoolingRate:        s.Annealing.CoolingRate,
				MinTemperature:     s.Annealing.MinTemperature,
				Timeout:            s.Annealing.Timeout,
			},
		},
		Scoring: Scoring{
			CategoryWeights:    weights,
			TeamMemberFraction: s.Scoring.TeamMemberFraction,
			DecayRate:          s.Scoring.DecayRate,
			PreferenceBonus:    s.Scoring.PreferenceBonus,
		},
	}
}

// Load loads and validates the configuration from roster_config.yaml.
// It looks for the config file in the current directory first, then in the
// user's home directory. Without a file the defaults are used.
func Load() (*Config, error) {
	configPath, err := findConfigFile()
	if err != nil {
		cfg := Default()
		applyEnv(cfg)
		return cfg, Validate(cfg)
	}

	return LoadFromPath(configPath)
}

// LoadFromPath loads and validates the configuration from a specific path.
// Variables from a .env file next to the working directory override the file.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	applyEnv(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv overlays DATABASE_URL and ROSTER_SQLITE_PATH from the
// environment or a .env file
func applyEnv(cfg *Config) {
	_ = godotenv.Load()

	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Storage.DatabaseURL = url
	}
	if path := os.Getenv("ROSTER_SQLITE_PATH"); path != "" {
		cfg.Storage.SQLitePath = path
	}
}

// Validate validates the configuration struct and checks rrule syntax
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	for i, rule := range cfg.BlackoutRules {
		if _, err := rrule.StrToRRule(rule.RRule); err != nil {
			return fmt.Errorf("invalid rrule in blackoutRules[%d]: %w", i, err)
		}
	}

	return nil
}

// ClosedDates expands the blackout rules into dates within [from, to]. When
// either bound is zero a window from a year back to two years ahead is used.
func (c *Config) ClosedDates(from, to time.Time) ([]time.Time, error) {
	if from.IsZero() || to.IsZero() {
		today := model.TruncateDate(time.Now())
		from, to = today.AddDate(-1, 0, 0), today.AddDate(2, 0, 0)
	}
	from = model.TruncateDate(from)
	until := model.TruncateDate(to).Add(24*time.Hour - time.Nanosecond)

	seen := make(map[string]bool)
	var dates []time.Time
	for i, rule := range c.BlackoutRules {
		opt, err := rrule.StrToROption(rule.RRule)
		if err != nil {
			return nil, fmt.Errorf("invalid rrule in blackoutRules[%d]: %w", i, err)
		}
		// Rules without DTSTART recur from the start of the window
		if opt.Dtstart.IsZero() {
			opt.Dtstart = from
		}
		r, err := rrule.NewRRule(*opt)
		if err != nil {
			return nil, fmt.Errorf("invalid rrule in blackoutRules[%d]: %w", i, err)
		}
		for _, occurrence := range r.Between(from, until, true) {
			d := model.TruncateDate(occurrence)
			if key := d.Format(model.DateLayout); !seen[key] {
				seen[key] = true
				dates = append(dates, d)
			}
		}
	}
	return dates, nil
}

// RosterOptions builds the generation options for a run over [from, to]
func (c *Config) RosterOptions(from, to time.Time) (services.RosterOptions, error) {
	closed, err := c.ClosedDates(from, to)
	if err != nil {
		return services.RosterOptions{}, err
	}

	categoryWeights := make(map[model.ShiftCategory]float64, len(c.Scoring.CategoryWeights))
	for category, w := range c.Scoring.CategoryWeights {
		categoryWeights[model.ShiftCategory(category)] = w
	}

	limits := rules.Limits{
		MaxNightsPerWeek:      c.Scheduling.Limits.MaxNightsPerWeek,
		MinRestHours:          c.Scheduling.Limits.MinRestHours,
		MaxConsecutiveDays:    c.Scheduling.Limits.MaxConsecutiveDays,
		MaxConsecutiveNights:  c.Scheduling.Limits.MaxConsecutiveNights,
		TeamBlackoutTolerance: c.Scheduling.Limits.TeamBlackoutTolerance,
	}

	return services.RosterOptions{
		Strategy: allocator.Options{
			Limits:       limits,
			ShuffleSlots: c.Scheduling.ShuffleSlots,
			Backtracking: allocator.BacktrackingOptions{
				MaxIterations: c.Algorithms.Backtracking.MaxIterations,
				Timeout:       c.Algorithms.Backtracking.Timeout,
			},
			Annealing: allocator.AnnealingOptions{
				Iterations:         c.Algorithms.Annealing.Iterations,
				InitialTemperature: c.Algorithms.Annealing.InitialTemperature,
				CoolingRate:        c.Algorithms.Annealing.CoolingRate,
				MinTemperature:     c.Algorithms.Annealing.MinTemperature,
				Timeout:            c.Algorithms.Annealing.Timeout,
			},
			Scoring: allocator.ScoringOptions{
				CategoryWeights:    categoryWeights,
				TeamMemberFraction: c.Scoring.TeamMemberFraction,
				DecayRate:          c.Scoring.DecayRate,
				PreferenceBonus:    c.Scoring.PreferenceBonus,
			},
		},
		Weights: rules.SoftWeights{
			PreferredAvailability: c.Scheduling.Weights.PreferredAvailability,
			ShiftTypeChanges:      c.Scheduling.Weights.ShiftTypeChanges,
			BalanceHours:          c.Scheduling.Weights.BalanceHours,
			ConsecutiveBlocks:     c.Scheduling.Weights.ConsecutiveBlocks,
			SplitWeekend:          c.Scheduling.Weights.SplitWeekend,
		},
		ClosedDates: closed,
		HistoryDays: c.Scheduling.HistoryDays,
	}, nil
}

// findConfigFile searches for roster_config.yaml in current directory and home directory
func findConfigFile() (string, error) {
	if _, err := os.Stat(configFileName); err == nil {
		return configFileName, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	homeConfigPath := filepath.Join(homeDir, configFileName)
	if _, err := os.Stat(homeConfigPath); err == nil {
		return homeConfigPath, nil
	}

	return "", fmt.Errorf("config file not found in current directory or home directory")
}
