package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultServerAddress = "0.0.0.0:8001"
	DefaultZone          = "DE"
	DefaultUpstreamURL   = "https://api.electricitymap.org/v3/carbon-intensity/latest"
	DefaultTemplatePath  = "./templates/treeCounter.html"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Server struct {
	ServerAddress   string
	APIKey          string
	Zone            string
	UpstreamURL     string
	UpstreamTimeout time.Duration
	TemplatePath    string
	FailureRate     float64
	MinDelay        time.Duration
	MaxDelay        time.Duration
	PushGatewayURL  string
	PushInterval    time.Duration
	LogLevel        string
}

func DefaultServer() Server {
	return Server{
		ServerAddress:   DefaultServerAddress,
		Zone:            DefaultZone,
		UpstreamURL:     DefaultUpstreamURL,
		UpstreamTimeout: 10 * time.Second,
		TemplatePath:    DefaultTemplatePath,
		FailureRate:     0.15,
		MinDelay:        0,
		MaxDelay:        time.Second,
		PushInterval:    15 * time.Second,
		LogLevel:        "info",
	}
}

// SetConfigServer builds the server configuration from defaults, command line flags and the
// environment, in increasing priority. A .env file in the working directory is loaded first.
func SetConfigServer() (Server, error) {
	// a missing .env file is fine, variables may come from the real environment
	_ = godotenv.Load()

	conf, err := parseServerFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		return conf, err
	}
	if err := CheckEnvServerVariables(&conf); err != nil {
		return conf, err
	}
	return conf, conf.Validate()
}

func parseServerFlags(fs *flag.FlagSet, args []string) (Server, error) {
	conf := DefaultServer()

	fs.StringVar(&conf.ServerAddress, "a", conf.ServerAddress, "HTTP server address")
	fs.StringVar(&conf.APIKey, "k", conf.APIKey, "Electricity Maps API key")
	fs.StringVar(&conf.Zone, "z", conf.Zone, "grid zone code")
	fs.StringVar(&conf.UpstreamURL, "u", conf.UpstreamURL, "carbon intensity upstream URL")
	fs.DurationVar(&conf.UpstreamTimeout, "t", conf.UpstreamTimeout, "upstream request timeout")
	fs.StringVar(&conf.TemplatePath, "tpl", conf.TemplatePath, "path to the HTML template")
	fs.Float64Var(&conf.FailureRate, "fail-rate", conf.FailureRate, "probability of a simulated upstream outage")
	fs.DurationVar(&conf.MinDelay, "min-delay", conf.MinDelay, "minimum injected latency")
	fs.DurationVar(&conf.MaxDelay, "max-delay", conf.MaxDelay, "maximum injected latency")
	fs.StringVar(&conf.PushGatewayURL, "push", conf.PushGatewayURL, "Pushgateway URL, empty disables pushing")
	fs.DurationVar(&conf.PushInterval, "push-interval", conf.PushInterval, "metrics push interval")
	fs.StringVar(&conf.LogLevel, "l", conf.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		return conf, err
	}
	return conf, nil
}

func CheckEnvServerVariables(conf *Server) error {
	if address := os.Getenv("ADDRESS"); address != "" {
		conf.ServerAddress = address
	}
	if key := os.Getenv("ELECTRICITY_MAP_API_KEY"); key != "" {
		conf.APIKey = key
	}
	if zone := os.Getenv("ZONE"); zone != "" {
		conf.Zone = zone
	}
	if url := os.Getenv("UPSTREAM_URL"); url != "" {
		conf.UpstreamURL = url
	}
	if timeout := os.Getenv("UPSTREAM_TIMEOUT"); timeout != "" {
		seconds, err := strconv.Atoi(timeout)
		if err != nil {
			return fmt.Errorf("%w: UPSTREAM_TIMEOUT: %v", ErrInvalidConfig, err)
		}
		conf.UpstreamTimeout = time.Duration(seconds) * time.Second
	}
	if path := os.Getenv("TEMPLATE_PATH"); path != "" {
		conf.TemplatePath = path
	}
	if rate := os.Getenv("FAILURE_RATE"); rate != "" {
		value, err := strconv.ParseFloat(rate, 64)
		if err != nil {
			return fmt.Errorf("%w: FAILURE_RATE: %v", ErrInvalidConfig, err)
		}
		conf.FailureRate = value
	}
	if minDelay := os.Getenv("MIN_DELAY"); minDelay != "" {
		ms, err := strconv.Atoi(minDelay)
		if err != nil {
			return fmt.Errorf("%w: MIN_DELAY: %v", ErrInvalidConfig, err)
		}
		conf.MinDelay = time.Duration(ms) * time.Millisecond
	}
	if maxDelay := os.Getenv("MAX_DELAY"); maxDelay != "" {
		ms, err := strconv.Atoi(maxDelay)
		if err != nil {
			return fmt.Errorf("%w: MAX_DELAY: %v", ErrInvalidConfig, err)
		}
		conf.MaxDelay = time.Duration(ms) * time.Millisecond
	}
	if push := os.Getenv("PUSHGATEWAY_URL"); push != "" {
		conf.PushGatewayURL = push
	}
	if interval := os.Getenv("PUSH_INTERVAL"); interval != "" {
		seconds, err := strconv.Atoi(interval)
		if err != nil {
			return fmt.Errorf("%w: PUSH_INTERVAL: %v", ErrInvalidConfig, err)
		}
		conf.PushInterval = time.Duration(seconds) * time.Second
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		conf.LogLevel = level
	}
	return nil
}

func (s Server) Validate() error {
	switch {
	case s.ServerAddress == "":
		return fmt.Errorf("%w: server address is empty", ErrInvalidConfig)
	case s.Zone == "":
		return fmt.Errorf("%w: zone is empty", ErrInvalidConfig)
	case s.UpstreamURL == "":
		return fmt.Errorf("%w: upstream URL is empty", ErrInvalidConfig)
	case s.TemplatePath == "":
		return fmt.Errorf("%w: template path is empty", ErrInvalidConfig)
	case s.UpstreamTimeout <= 0:
		return fmt.Errorf("%w: upstream timeout must be positive", ErrInvalidConfig)
	case s.FailureRate < 0 || s.FailureRate > 1:
		return fmt.Errorf("%w: failure rate %v is outside [0, 1]", ErrInvalidConfig, s.FailureRate)
	case s.MinDelay < 0 || s.MinDelay > s.MaxDelay:
		return fmt.Errorf("%w: delay range [%s, %s] is invalid", ErrInvalidConfig, s.MinDelay, s.MaxDelay)
	case s.PushGatewayURL != "" && s.PushInterval <= 0:
		return fmt.Errorf("%w: push interval must be positive", ErrInvalidConfig)
	}
	return nil
}
