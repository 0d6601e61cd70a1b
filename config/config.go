package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "THINKHIRE"

type Service struct {
	URL string `mapstructure:"url" yaml:"url"`
}

type Services struct {
	Analysis Service `mapstructure:"analysis" yaml:"analysis"`
	ASR      Service `mapstructure:"asr" yaml:"asr"`
}

type Features struct {
	WindowLengthMs int `mapstructure:"window_length_ms" yaml:"window_length_ms"`
	StepMs         int `mapstructure:"step_ms" yaml:"step_ms"`
	FPS            int `mapstructure:"fps" yaml:"fps"`
	Retain         int `mapstructure:"retain" yaml:"retain"`
}

type Interview struct {
	Domain          string        `mapstructure:"domain" yaml:"domain"`
	QuestionCap     int           `mapstructure:"question_cap" yaml:"question_cap"`
	CountdownTicks  int           `mapstructure:"countdown_ticks" yaml:"countdown_ticks"`
	Tick            time.Duration `mapstructure:"tick" yaml:"tick"`
	AnalysisTimeout time.Duration `mapstructure:"analysis_timeout" yaml:"analysis_timeout"`
	AdaptiveTimeout time.Duration `mapstructure:"adaptive_timeout" yaml:"adaptive_timeout"`
	Silence         time.Duration `mapstructure:"silence" yaml:"silence"`
}

type Scorer struct {
	// Primary is one of remote, gemini, groq or heuristic.
	Primary string `mapstructure:"primary" yaml:"primary"`
	Seed    int64  `mapstructure:"seed" yaml:"seed"`
}

type Gemini struct {
	APIKey string `mapstructure:"api_key" yaml:"api_key"`
	Model  string `mapstructure:"model" yaml:"model"`
}

type Groq struct {
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	Model   string `mapstructure:"model" yaml:"model"`
}

type MQTT struct {
	Broker   string `mapstructure:"broker" yaml:"broker"`
	ClientID string `mapstructure:"client_id" yaml:"client_id"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	Topic    string `mapstructure:"topic" yaml:"topic"`
}

type Root struct {
	Pipeline struct {
		Name   string `mapstructure:"name" yaml:"name"`
		LogLvl string `mapstructure:"log_level" yaml:"log_level"`
	} `mapstructure:"pipeline" yaml:"pipeline"`
	Services  Services  `mapstructure:"services" yaml:"services"`
	Features  Features  `mapstructure:"features" yaml:"features"`
	Interview Interview `mapstructure:"interview" yaml:"interview"`
	Scorer    Scorer    `mapstructure:"scorer" yaml:"scorer"`
	Gemini    Gemini    `mapstructure:"gemini" yaml:"gemini"`
	Groq      Groq      `mapstructure:"groq" yaml:"groq"`
	MQTT      MQTT      `mapstructure:"mqtt" yaml:"mqtt"`
	Dashboard struct {
		Addr string `mapstructure:"addr" yaml:"addr"`
	} `mapstructure:"dashboard" yaml:"dashboard"`
	Store struct {
		Path string `mapstructure:"path" yaml:"path"`
	} `mapstructure:"store" yaml:"store"`
	Questions struct {
		File string `mapstructure:"file" yaml:"file"`
	} `mapstructure:"questions" yaml:"questions"`
	Paths struct {
		Outputs string `mapstructure:"outputs" yaml:"outputs"`
	} `mapstructure:"paths" yaml:"paths"`
}

// SetDefaults registers the values used when neither the config file nor the
// environment provides one.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("pipeline.name", "thinkhire")
	v.SetDefault("pipeline.log_level", "info")
	v.SetDefault("services.analysis.url", "http://localhost:8000")
	v.SetDefault("features.window_length_ms", 3000)
	v.SetDefault("features.step_ms", 1000)
	v.SetDefault("features.fps", 15)
	v.SetDefault("features.retain", 10)
	v.SetDefault("interview.domain", "general")
	v.SetDefault("interview.question_cap", 5)
	v.SetDefault("interview.countdown_ticks", 3)
	v.SetDefault("interview.tick", time.Second)
	v.SetDefault("interview.analysis_timeout", 5*time.Second)
	v.SetDefault("interview.adaptive_timeout", 10*time.Second)
	v.SetDefault("interview.silence", 5*time.Second)
	v.SetDefault("scorer.primary", "remote")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("groq.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("groq.model", "llama-3.3-70b-versatile")
	v.SetDefault("mqtt.client_id", "thinkhire-pipeline")
	v.SetDefault("mqtt.topic", "thinkhire/{session}/windows")
	v.SetDefault("store.path", filepath.Join("outputs", "store.json"))
	v.SetDefault("paths.outputs", "outputs")
}

// LoadDotEnv loads .env.local and .env from the working directory. Missing
// files are skipped; variables already set are left untouched.
func LoadDotEnv() error {
	for _, p := range []string{".env.local", ".env"} {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads the configuration into v. An explicit file wins; otherwise the
// usual locations are probed and a missing file falls back to defaults.
func Load(v *viper.Viper, file string) (*Root, error) {
	SetDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("gemini.api_key", envPrefix+"_GEMINI_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("groq.api_key", envPrefix+"_GROQ_API_KEY", "GROQ_API_KEY")

	if file == "" {
		file = guess()
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Root
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func guess() string {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	for _, p := range []string{
		"thinkhire.yaml",
		filepath.Join("config", env, "config.yaml"),
	} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Validate checks the window geometry and interview limits.
func (r *Root) Validate() error {
	if r.Features.StepMs <= 0 {
		return fmt.Errorf("features.step_ms must be positive, got %d", r.Features.StepMs)
	}
	if r.Features.WindowLengthMs < r.Features.StepMs {
		return fmt.Errorf("features.window_length_ms (%d) must be >= features.step_ms (%d)",
			r.Features.WindowLengthMs, r.Features.StepMs)
	}
	if r.Features.FPS <= 0 {
		return fmt.Errorf("features.fps must be positive, got %d", r.Features.FPS)
	}
	if r.Interview.QuestionCap < 1 {
		return fmt.Errorf("interview.question_cap must be >= 1, got %d", r.Interview.QuestionCap)
	}
	if r.Interview.CountdownTicks < 0 {
		return fmt.Errorf("interview.countdown_ticks must not be negative")
	}
	return nil
}

func Millis(n int) time.Duration { return time.Duration(n) * time.Millisecond }
