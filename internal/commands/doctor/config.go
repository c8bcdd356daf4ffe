package doctor

import (
	"context"

	"github.com/hay-kot/parley/internal/core/config"
)

// ConfigCheck reports the config file, the node identity and where its data
// lives, followed by validation errors and warnings.
type ConfigCheck struct {
	config     *config.Config
	configPath string
}

func NewConfigCheck(cfg *config.Config, configPath string) *ConfigCheck {
	return &ConfigCheck{config: cfg, configPath: configPath}
}

func (c *ConfigCheck) Name() string {
	return "Configuration"
}

func (c *ConfigCheck) Run(_ context.Context) Result {
	result := Result{Name: c.Name()}

	if c.config == nil {
		result.Items = append(result.Items, CheckItem{
			Label:  "Config loaded",
			Status: StatusFail,
			Detail: "configuration not loaded",
		})
		return result
	}

	report := c.config.Check(c.configPath)

	file := CheckItem{Label: "Config file", Status: StatusPass, Detail: report.Path}
	if !report.FileFound {
		file.Status = StatusWarn
		file.Detail = "not found, using defaults"
	}
	result.Items = append(result.Items, file)

	for _, s := range report.Settings {
		switch s.Key {
		case "username", "advertise", "storage", "peers":
			result.Items = append(result.Items, CheckItem{Label: s.Key, Status: StatusPass, Detail: s.Value})
		}
	}

	for _, fe := range report.Errors {
		label := fe.Field
		if label == "" {
			label = "validation"
		}
		result.Items = append(result.Items, CheckItem{Label: label, Status: StatusFail, Detail: fe.Err.Error()})
	}

	for _, w := range report.Warnings {
		result.Items = append(result.Items, CheckItem{Label: w.Item, Status: StatusWarn, Detail: w.Message})
	}

	return result
}
