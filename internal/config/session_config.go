package config

import "time"

type SessionConfig interface {
	GetRequestTimeout() time.Duration
	GetRefreshLead() time.Duration
	GetRefreshCheckInterval() time.Duration
	GetStorageKey() string
}

type Session struct {
	file *File
}

var _ SessionConfig = Session{}

// GetRequestTimeout bounds every outbound call, the refresh call included.
func (s Session) GetRequestTimeout() time.Duration {
	return GetEnvDuration("REQUEST_TIMEOUT", durationOr(s.f().Session.RequestTimeout, 30*time.Second))
}

// GetRefreshLead is how long before access token expiry a proactive refresh fires.
func (s Session) GetRefreshLead() time.Duration {
	return GetEnvDuration("REFRESH_LEAD", durationOr(s.f().Session.RefreshLead, 5*time.Minute))
}

func (s Session) GetRefreshCheckInterval() time.Duration {
	return GetEnvDuration("REFRESH_CHECK_INTERVAL", durationOr(s.f().Session.RefreshCheckInterval, time.Minute))
}

func (s Session) GetStorageKey() string {
	return GetEnv("STORAGE_KEY", firstNonEmpty(s.f().Session.StorageKey, "onflix_session"))
}

func (s Session) f() *File {
	if s.file == nil {
		return &File{}
	}
	return s.file
}
