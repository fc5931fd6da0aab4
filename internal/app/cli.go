package app

import (
	"context"
	"fmt"

	"aquabot/internal/config"
	"aquabot/internal/confirm"
	"aquabot/internal/yclients"
	logx "aquabot/pkg/logx"
)

// Check loads and validates cfgPath without starting anything.
func Check(cfgPath string) (*config.Config, error) {
	if err := config.LoadDotenv(cfgPath); err != nil {
		return nil, err
	}
	cfg, err := config.NewConfigManager(cfgPath).Parse()
	if err != nil {
		return nil, err
	}
	if _, err := mapSettings(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ConfirmRecord runs one confirmation against the platform, the same way
// the confirm button does. Stages are reported through onStage.
func ConfirmRecord(ctx context.Context, cfgPath string, companyID, recordID int64, log logx.Logger, onStage func(confirm.Stage)) (confirm.Result, error) {
	cfg, err := Check(cfgPath)
	if err != nil {
		return confirm.Result{}, err
	}
	set, err := mapSettings(cfg)
	if err != nil {
		return confirm.Result{}, err
	}
	if companyID == 0 {
		companyID = cfg.Yclients.CompanyID
	}
	if companyID <= 0 || recordID <= 0 {
		return confirm.Result{}, fmt.Errorf("company and record ids must be positive")
	}
	yc := yclients.New(set.Yclients, log)
	return confirm.New(set.Confirm, yc, nil, log).Confirm(ctx, confirm.Request{
		CompanyID: companyID,
		RecordID:  recordID,
		OnStage:   onStage,
	})
}
