package config

import (
    "strings"
    "time"

    "github.com/iliyamo/rental-markup/internal/model"
)

// MarkupConfig tunes the markup engine.  LinkTTL bounds how long a shared
// link resolves.  ApplyRetries bounds reruns of an apply transaction that
// lost a race.  LinkPrefixes overrides the landing route prefix per
// markable type (MARKUP_LINK_PREFIX_PROPERTY=stay-offer and so on).
// LRUSize caps the in-process link cache used when Redis is unavailable.
type MarkupConfig struct {
    LinkTTL      time.Duration
    ApplyRetries int
    LinkPrefixes map[model.MarkableType]string
    LRUSize      int
}

// LoadMarkupConfig reads MARKUP_* variables, falling back to defaults.
func LoadMarkupConfig() MarkupConfig {
    cfg := MarkupConfig{
        LinkTTL:      envDur("MARKUP_LINK_TTL", 30*24*time.Hour),
        ApplyRetries: envInt("MARKUP_APPLY_RETRIES", 3),
        LinkPrefixes: map[model.MarkableType]string{},
        LRUSize:      envInt("MARKUP_LRU_SIZE", 10000),
    }
    for _, t := range model.MarkableTypes {
        if p := envStr("MARKUP_LINK_PREFIX_"+strings.ToUpper(string(t)), ""); p != "" {
            cfg.LinkPrefixes[t] = p
        }
    }
    if cfg.LinkTTL <= 0 { cfg.LinkTTL = 30 * 24 * time.Hour }
    if cfg.ApplyRetries < 1 { cfg.ApplyRetries = 1 }
    return cfg
}
