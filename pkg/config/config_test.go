package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, 75.0, cfg.Attendance.LowThreshold)
	assert.Equal(t, "Operating System", cfg.Attendance.SubjectAliases["OS"])
	assert.Equal(t, int64(10*1024*1024), cfg.Sources.MaxFileSizeBytes)
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 24*time.Hour, cfg.Exports.SignedURLTTL)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("ATTENDANCE_LOW_THRESHOLD", 150)
	v.Set("MAIL_USERNAME", "admin@example.com")
	v.Set("REPORT_CACHE_TTL", "not-a-duration")

	cfg := fromViper(v)

	assert.Equal(t, 75.0, cfg.Attendance.LowThreshold)
	assert.Equal(t, "admin@example.com", cfg.SMTP.From)
	assert.Equal(t, "admin@example.com", cfg.Alerts.AdminEmail)
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
}

func TestParsePairs(t *testing.T) {
	pairs := parsePairs(" os = Operating System ,broken, =x,CN=Computer Networks")
	assert.Equal(t, map[string]string{"OS": "Operating System", "CN": "Computer Networks"}, pairs)
}
