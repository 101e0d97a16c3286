// Package settings exposes the system_config table as a typed key/value
// store with a read-through cache. Strategies read their tunables here;
// writes invalidate the cache so the next read sees fresh values.
package settings

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/knosm/pixisync/app/database"
)

const (
	TypeString   = "string"
	TypeInteger  = "integer"
	TypeFloat    = "float"
	TypeBoolean  = "boolean"
	TypeDatetime = "datetime"
)

const datetimeLayout = "2006-01-02 15:04:05"

// Keys used by the collection engine.
const (
	KeyAccessToken    = "access_token"
	KeyRefreshToken   = "refresh_token"
	KeyTokenExpiresAt = "token_expires_at"
	KeyRemoteUserID   = "pixiv_user"

	KeyAPIDelayMin        = "api_delay_min"
	KeyAPIDelayMax        = "api_delay_max"
	KeyErrorDelay429Min   = "error_delay_429_min"
	KeyErrorDelay429Max   = "error_delay_429_max"
	KeyErrorDelay403Min   = "error_delay_403_min"
	KeyErrorDelay403Max   = "error_delay_403_max"
	KeyErrorDelayOtherMin = "error_delay_other_min"
	KeyErrorDelayOtherMax = "error_delay_other_max"

	KeyBacktrackYears     = "new_user_backtrack_years"
	KeyUpdateIntervalDays = "update_interval_days"
	KeyUpdateMaxPerRun    = "update_max_per_run"
	KeyLogRetentionDays   = "log_retention_days"
	KeyInvalidAction      = "invalid_artwork_action"
)

type Store struct {
	repo  database.SystemConfigRepository
	mu    sync.RWMutex
	cache map[string]string // key -> raw value, nil map means cold
	types map[string]string
}

func NewStore(repo database.SystemConfigRepository) *Store {
	return &Store{repo: repo}
}

func (s *Store) load() error {
	s.mu.RLock()
	warm := s.cache != nil
	s.mu.RUnlock()
	if warm {
		return nil
	}

	configs, err := s.repo.GetAll()
	if err != nil {
		return fmt.Errorf("failed to load system config: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]string, len(configs))
	s.types = make(map[string]string, len(configs))
	for _, c := range configs {
		s.cache[c.ConfigKey] = c.ConfigValue
		s.types[c.ConfigKey] = c.ValueType
	}
	return nil
}

// Invalidate drops the cache; the next read goes back to the database.
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = nil
	s.types = nil
}

func (s *Store) raw(key string) (string, bool) {
	if err := s.load(); err != nil {
		return "", false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.cache[key]
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

func (s *Store) GetString(key, fallback string) string {
	if value, ok := s.raw(key); ok {
		return value
	}
	return fallback
}

func (s *Store) GetInt(key string, fallback int) int {
	if value, ok := s.raw(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func (s *Store) GetFloat(key string, fallback float64) float64 {
	if value, ok := s.raw(key); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func (s *Store) GetBool(key string, fallback bool) bool {
	if value, ok := s.raw(key); ok {
		return value == "true"
	}
	return fallback
}

func (s *Store) GetTime(key string) *time.Time {
	if value, ok := s.raw(key); ok {
		if parsed, err := time.Parse(datetimeLayout, value); err == nil {
			parsed = parsed.UTC()
			return &parsed
		}
	}
	return nil
}

func (s *Store) SetString(key, value string) error {
	return s.set(key, value, TypeString)
}

func (s *Store) SetInt(key string, value int) error {
	return s.set(key, strconv.Itoa(value), TypeInteger)
}

func (s *Store) SetFloat(key string, value float64) error {
	return s.set(key, strconv.FormatFloat(value, 'f', -1, 64), TypeFloat)
}

func (s *Store) SetBool(key string, value bool) error {
	return s.set(key, strconv.FormatBool(value), TypeBoolean)
}

func (s *Store) SetTime(key string, value time.Time) error {
	return s.set(key, value.UTC().Format(datetimeLayout), TypeDatetime)
}

func (s *Store) set(key, value, valueType string) error {
	if err := s.repo.Set(key, value, valueType); err != nil {
		return err
	}
	s.Invalidate()
	return nil
}

// All returns every stored key with its typed representation, for the
// settings API surface.
func (s *Store) All() (map[string]interface{}, error) {
	if err := s.load(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]interface{}, len(s.cache))
	for key, value := range s.cache {
		switch s.types[key] {
		case TypeInteger:
			if parsed, err := strconv.Atoi(value); err == nil {
				result[key] = parsed
				continue
			}
		case TypeFloat:
			if parsed, err := strconv.ParseFloat(value, 64); err == nil {
				result[key] = parsed
				continue
			}
		case TypeBoolean:
			result[key] = value == "true"
			continue
		case TypeDatetime:
			if parsed, err := time.Parse(datetimeLayout, value); err == nil {
				result[key] = parsed.UTC()
				continue
			}
		}
		result[key] = value
	}
	return result, nil
}
