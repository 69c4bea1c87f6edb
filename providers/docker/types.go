package docker

import "encoding/json"

type ContainerConfig struct {
	Image       string             `json:"image"`
	Name        string             `json:"name"`
	Command     []string           `json:"command"`
	Ports       map[string]int     `json:"ports"`
	Env         map[string]string  `json:"env"`
	Networks    []string           `json:"networks"`
	Volumes     []string           `json:"volumes"`
	Labels      map[string]string  `json:"labels"`
	WorkingDir  string             `json:"workingDir"`
	User        string             `json:"user"`
	Restart     string             `json:"restart"`
	Healthcheck *HealthcheckConfig `json:"healthcheck"`
	Logging     *LoggingConfig     `json:"logging"`
	Secrets     []SecretConfig     `json:"secrets"`
}

type HealthcheckConfig struct {
	Test        []string `json:"test"`
	Interval    string   `json:"interval"`
	Timeout     string   `json:"timeout"`
	StartPeriod string   `json:"startPeriod"`
	Retries     int      `json:"retries"`
}

type LoggingConfig struct {
	Driver  string            `json:"driver"`
	Options map[string]string `json:"options"`
}

type SecretConfig struct {
	Source string `json:"source"`
	Target string `json:"target"`
	File   string `json:"file"`
}

type NetworkConfig struct {
	Name     string            `json:"name"`
	Driver   string            `json:"driver"`
	Internal bool              `json:"internal"`
	Labels   map[string]string `json:"labels"`
}

type VolumeConfig struct {
	Name   string `json:"name"`
	Driver string `json:"driver"`
}

type ImageConfig struct {
	Name         string `json:"name"`
	BuildContext string `json:"buildContext"`
	Dockerfile   string `json:"dockerfile"`
}

// decode maps resolved attributes onto a typed config through JSON.
func decode(attrs map[string]any, out any) error {
	raw, err := json.Marshal(attrs)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
