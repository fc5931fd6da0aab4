package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// Secrets may live outside the config file. Set variables win over the file.
const (
	EnvTelegramToken  = "AQUABOT_TELEGRAM_TOKEN"
	EnvPartnerToken   = "AQUABOT_YCLIENTS_PARTNER_TOKEN"
	EnvUserToken      = "AQUABOT_YCLIENTS_USER_TOKEN"
	EnvRedisPassword  = "AQUABOT_REDIS_PASSWORD"
	EnvWebhookPprofTo = "AQUABOT_PPROF_TOKEN"
)

// LoadDotenv reads .env from the config directory and the working
// directory. Already-set variables are left alone; missing files are fine.
func LoadDotenv(configPath string) error {
	seen := map[string]bool{}
	for _, p := range []string{filepath.Join(filepath.Dir(configPath), ".env"), ".env"} {
		abs, err := filepath.Abs(p)
		if err != nil || seen[abs] {
			continue
		}
		seen[abs] = true
		if err := godotenv.Load(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

func applyEnv(cfg *Config) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&cfg.Telegram.Token, EnvTelegramToken)
	set(&cfg.Yclients.PartnerToken, EnvPartnerToken)
	set(&cfg.Yclients.UserToken, EnvUserToken)
	set(&cfg.Redis.Password, EnvRedisPassword)
	set(&cfg.Webhook.PprofToken, EnvWebhookPprofTo)
}
