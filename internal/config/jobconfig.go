package config

import (
	"strings"

	"contactminer/internal/model"
)

// ParseJobConfig converts the free-form `config` map accepted by the Job
// API into the typed model.JobConfig record. Unknown keys are
// ignored by construction — only the recognized keys are read. Missing
// numeric keys are filled from the process Mining defaults.
func ParseJobConfig(raw map[string]any, defaults MiningDefaults) model.JobConfig {
	jc := model.JobConfig{
		MiningMode:      model.MiningMode(strings.TrimSpace(defaults.Mode)),
		MaxPages:        defaults.MaxPages,
		MaxDetails:      defaults.MaxDetails,
		ListPageDelayMs: defaults.ListPageDelayMs,
		DetailDelayMs:   defaults.DetailDelayMs,
		TotalTimeoutMs:  defaults.TotalTimeoutMs,
	}
	if jc.MiningMode == "" {
		jc.MiningMode = model.ModeAI
	}

	if raw == nil {
		return jc
	}

	if v, ok := stringVal(raw, "mining_mode"); ok {
		switch model.MiningMode(v) {
		case model.ModeQuick, model.ModeFull, model.ModeAI:
			jc.MiningMode = model.MiningMode(v)
		}
	}
	if v, ok := intVal(raw, "max_pages"); ok {
		jc.MaxPages = v
	}
	if v, ok := intVal(raw, "max_details"); ok {
		jc.MaxDetails = v
	}
	if v, ok := intVal(raw, "list_page_delay_ms"); ok {
		jc.ListPageDelayMs = v
	}
	if v, ok := intVal(raw, "detail_delay_ms"); ok {
		jc.DetailDelayMs = v
	}
	if v, ok := stringVal(raw, "detail_url_pattern"); ok {
		jc.DetailURLPattern = v
	}
	if v, ok := intVal(raw, "page_size"); ok {
		jc.PageSize = v
	}
	if v, ok := intVal(raw, "force_page_count"); ok {
		jc.ForcePageCount = v
	}
	if v, ok := intVal(raw, "total_timeout"); ok {
		jc.TotalTimeoutMs = v
	}
	if v, ok := raw["skip_details"].(bool); ok {
		jc.SkipDetails = v
	}
	if v, ok := raw["login"].(map[string]any); ok {
		login := &model.LoginConfig{}
		if s, ok := stringVal(v, "login_url"); ok {
			login.LoginURL = s
		}
		if s, ok := stringVal(v, "username"); ok {
			login.Username = s
		}
		if s, ok := stringVal(v, "email"); ok {
			login.Email = s
		}
		if s, ok := stringVal(v, "password"); ok {
			login.Password = s
		}
		jc.Login = login
	}

	if jc.MaxPages <= 0 {
		jc.MaxPages = 20
	}
	if jc.ListPageDelayMs < 500 {
		jc.ListPageDelayMs = 2000
	}

	return jc
}

func stringVal(m map[string]any, key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func intVal(m map[string]any, key string) (int, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
