package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
			d, err := time.ParseDuration(strings.TrimSpace(fl.Field().String()))
			return err == nil && d >= 0
		})
		v.RegisterStructValidation(crossFieldRules, Config{})
		validate = v
	})
	return validate
}

func crossFieldRules(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(Config)
	if cfg.Dedup.Backend == "redis" && strings.TrimSpace(cfg.Redis.Addr) == "" {
		sl.ReportError(cfg.Redis.Addr, "Redis.Addr", "addr", "required_with_redis_dedup", "")
	}
	if cfg.Logging.Telegram.Enabled && cfg.Telegram.AdminChatID == 0 {
		sl.ReportError(cfg.Telegram.AdminChatID, "Telegram.AdminChatID", "admin_chat_id", "required_with_log_sink", "")
	}
}

// Validate checks field constraints and returns one readable error.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	err := validatorInstance().Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		ns := fe.Namespace()
		if i := strings.IndexByte(ns, '.'); i >= 0 {
			ns = ns[i+1:]
		}
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s", ns, fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s", ns, fe.Tag()))
		}
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
