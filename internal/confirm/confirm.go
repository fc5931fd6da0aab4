// Package confirm marks a booking as confirmed by the client on the platform.
package confirm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"aquabot/internal/metrics"
	"aquabot/internal/yclients"
	logx "aquabot/pkg/logx"
)

type Stage string

const (
	StageLock             Stage = "lock"
	StageRead             Stage = "read"
	StageAlreadyConfirmed Stage = "already_confirmed"
	StageWriteJSON        Stage = "write_json"
	StageWriteForm        Stage = "write_form"
	StageVerify           Stage = "verify"
	StageDone             Stage = "done"
)

// API is the subset of the platform client the coordinator drives.
type API interface {
	GetRecord(ctx context.Context, companyID, recordID int64) (*yclients.Record, error)
	UpdateRecord(ctx context.Context, companyID, recordID int64, p yclients.UpdatePayload, onFallback func(error)) error
}

// Failure is returned for every unsuccessful confirmation.
type Failure struct {
	Stage   Stage
	Message string
	Errors  json.RawMessage
	Err     error
}

func (f *Failure) Error() string {
	if f.Message == "" {
		return fmt.Sprintf("confirm %s: %v", f.Stage, f.Err)
	}
	msg := f.Message
	var ue *yclients.UpdateError
	if errors.As(f.Err, &ue) && ue.JSON != nil {
		msg += "; json: " + ue.JSON.Error()
	}
	return fmt.Sprintf("confirm %s: %s", f.Stage, msg)
}

func (f *Failure) Unwrap() error { return f.Err }

// Timeout reports a call that exceeded its deadline rather than a rejection.
// After a refused write only the form leg decides.
func (f *Failure) Timeout() bool {
	err := f.Err
	var ue *yclients.UpdateError
	if errors.As(err, &ue) {
		err = ue.Form
	}
	return errors.Is(err, yclients.ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

type Request struct {
	CompanyID int64
	RecordID  int64
	// OnStage is called synchronously as the coordinator advances.
	OnStage func(Stage)
}

type Result struct {
	AlreadyConfirmed bool
	Payload          yclients.UpdatePayload
	// Verified is the record read back after the write; nil when that read failed.
	Verified *yclients.Record
}

type Config struct {
	// Also set visit_attendance=2 on confirm.
	SetVisitAttendance bool
}

type Coordinator struct {
	cfg  Config
	api  API
	lock Locker
	log  logx.Logger
}

// New builds a coordinator; lock defaults to an in-process locker.
func New(cfg Config, api API, lock Locker, log logx.Logger) *Coordinator {
	if lock == nil {
		lock = NewLocalLocker()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Coordinator{cfg: cfg, api: api, lock: lock, log: log.With(logx.String("comp", "confirm"))}
}

func (c *Coordinator) Confirm(ctx context.Context, req Request) (Result, error) {
	stage := func(s Stage) {
		if req.OnStage != nil {
			req.OnStage(s)
		}
	}
	log := c.log.With(logx.Int64("company_id", req.CompanyID), logx.Int64("record_id", req.RecordID))

	if req.CompanyID <= 0 || req.RecordID <= 0 {
		return Result{}, c.fail(log, &Failure{Stage: StageRead, Message: "invalid record reference"})
	}

	unlock, err := c.lock.Lock(ctx, fmt.Sprintf("confirm:%d:%d", req.CompanyID, req.RecordID))
	if err != nil {
		return Result{}, c.fail(log, failure(StageLock, err))
	}
	defer unlock()

	stage(StageRead)
	rec, err := c.api.GetRecord(ctx, req.CompanyID, req.RecordID)
	if err != nil {
		return Result{}, c.fail(log, failure(StageRead, err))
	}
	log.Info("record before confirm",
		logx.String("attendance", rec.Attendance.Display()),
		logx.String("visit_attendance", rec.VisitAttendance.Display()),
		logx.String("confirmed", rec.Confirmed.Display()))

	if rec.Attended(yclients.AttendanceConfirmed) {
		stage(StageAlreadyConfirmed)
		metrics.ConfirmationsTotal.WithLabelValues("already").Inc()
		return Result{AlreadyConfirmed: true}, nil
	}

	p := yclients.PayloadFrom(rec, req.RecordID)
	two := yclients.AttendanceConfirmed
	p.Attendance = &two
	if c.cfg.SetVisitAttendance {
		p.VisitAttendance = &two
	}

	writeStage := StageWriteJSON
	stage(writeStage)
	err = c.api.UpdateRecord(ctx, req.CompanyID, req.RecordID, p, func(jerr error) {
		log.Warn("json write rejected", logx.Err(jerr))
		writeStage = StageWriteForm
		stage(writeStage)
	})
	if err != nil {
		return Result{Payload: p}, c.fail(log, failure(writeStage, err))
	}

	stage(StageVerify)
	res := Result{Payload: p}
	if after, verr := c.api.GetRecord(ctx, req.CompanyID, req.RecordID); verr != nil {
		log.Warn("verify read failed", logx.Err(verr))
	} else {
		res.Verified = after
		log.Info("record after confirm",
			logx.String("attendance", after.Attendance.Display()),
			logx.String("visit_attendance", after.VisitAttendance.Display()))
	}

	stage(StageDone)
	metrics.ConfirmationsTotal.WithLabelValues("confirmed").Inc()
	return res, nil
}

func failure(s Stage, err error) *Failure {
	f := &Failure{Stage: s, Err: err}
	var apiErr *yclients.APIError
	if errors.As(err, &apiErr) {
		f.Message = apiErr.Message
		f.Errors = apiErr.Errors
	}
	return f
}

func (c *Coordinator) fail(log logx.Logger, f *Failure) error {
	outcome := "failed"
	switch {
	case f.Timeout():
		outcome = "timeout"
	case errors.Is(f.Err, ErrBusy):
		outcome = "busy"
	}
	metrics.ConfirmationsTotal.WithLabelValues(outcome).Inc()
	log.Warn("confirm failed",
		logx.String("stage", string(f.Stage)),
		logx.String("message", f.Message),
		logx.String("errors", string(f.Errors)),
		logx.Err(f.Err))
	return f
}
