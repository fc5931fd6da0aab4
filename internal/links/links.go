// Package links connects Telegram chats to platform clients by phone number.
package links

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"aquabot/internal/metrics"
	"aquabot/internal/storage"
	kit "aquabot/internal/transport"
	"aquabot/internal/yclients"
	logx "aquabot/pkg/logx"
	"aquabot/pkg/phone"
)

var ErrBadPhone = errors.New("links: phone not recognized")

// Store is the link persistence the service needs.
type Store interface {
	UpsertPending(ctx context.Context, l storage.Link) (storage.Link, error)
	MarkLinked(ctx context.Context, companyID, telegramUserID, clientID int64) (storage.Link, bool, error)
	LinkedChatByPhone(ctx context.Context, companyID int64, phone string) (int64, bool, error)
	LinkByTelegramUser(ctx context.Context, companyID, telegramUserID int64) (storage.Link, bool, error)
	PendingLinks(ctx context.Context, companyID int64, limit int) ([]storage.Link, error)
	CountPending(ctx context.Context, companyID int64) (int, error)
}

// Directory finds platform clients.
type Directory interface {
	FindClientByPhone(ctx context.Context, companyID int64, phone string) (*yclients.ClientInfo, error)
}

type Sender interface {
	Notify(ctx context.Context, n kit.Notification) error
}

type Config struct {
	CompanyID int64
	AdminChat kit.ChatTarget
	BatchSize int
	Throttle  time.Duration
	// Region for libphonenumber validation of shared contacts.
	Region string
}

type Service struct {
	cfg   Config
	store Store
	dir   Directory
	send  Sender
	log   logx.Logger
	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, store Store, dir Directory, send Sender, log logx.Logger) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.Throttle < 0 {
		cfg.Throttle = 0
	}
	if cfg.Region == "" {
		cfg.Region = phone.DefaultRegion
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, store: store, dir: dir, send: send, log: log.With(logx.String("comp", "links")), sleep: sleepCtx}
}

func (s *Service) CompanyID() int64 { return s.cfg.CompanyID }

// LinkedChat resolves the chat of a linked client; it satisfies the engine lookup.
func (s *Service) LinkedChat(ctx context.Context, companyID int64, p string) (int64, bool, error) {
	return s.store.LinkedChatByPhone(ctx, companyID, p)
}

func (s *Service) LinkOf(ctx context.Context, telegramUserID int64) (storage.Link, bool, error) {
	return s.store.LinkByTelegramUser(ctx, s.cfg.CompanyID, telegramUserID)
}

type Contact struct {
	UserID int64
	ChatID int64
	Phone  string
}

type ContactResult struct {
	Phone    string
	Linked   bool
	ClientID int64
}

// Contact stores a shared phone and links it when the platform knows the client.
// Unknown clients stay pending and the admin chat is told.
func (s *Service) Contact(ctx context.Context, c Contact) (ContactResult, error) {
	p := phone.Normalize(c.Phone)
	if p == "" || !phone.Valid(p, s.cfg.Region) {
		return ContactResult{}, fmt.Errorf("%w: %q", ErrBadPhone, c.Phone)
	}
	log := s.log.With(logx.Int64("user_id", c.UserID), logx.String("phone", p))

	if _, err := s.store.UpsertPending(ctx, storage.Link{
		CompanyID:      s.cfg.CompanyID,
		Phone:          p,
		TelegramUserID: c.UserID,
		TelegramChatID: c.ChatID,
	}); err != nil {
		return ContactResult{Phone: p}, fmt.Errorf("save link: %w", err)
	}

	found, err := s.dir.FindClientByPhone(ctx, s.cfg.CompanyID, p)
	if err != nil {
		return ContactResult{Phone: p}, fmt.Errorf("find client: %w", err)
	}
	if found == nil || found.ID == 0 {
		log.Info("client not found, link pending")
		s.notifyAdmin(ctx, clientNotFoundText(p, c.UserID, c.ChatID, s.cfg.CompanyID))
		s.refreshGauge(ctx)
		return ContactResult{Phone: p}, nil
	}

	if _, ok, err := s.store.MarkLinked(ctx, s.cfg.CompanyID, c.UserID, found.ID.Int64()); err != nil {
		return ContactResult{Phone: p}, fmt.Errorf("mark linked: %w", err)
	} else if !ok {
		return ContactResult{Phone: p}, fmt.Errorf("mark linked: no row for user %d", c.UserID)
	}
	log.Info("client linked", logx.Int64("client_id", found.ID.Int64()))
	s.refreshGauge(ctx)
	return ContactResult{Phone: p, Linked: true, ClientID: found.ID.Int64()}, nil
}

// ReportContactError tells the admin chat a contact could not be processed.
func (s *Service) ReportContactError(ctx context.Context, userID int64, err error) {
	s.notifyAdmin(ctx, contactErrorText(userID, err))
}

// Recheck retries pending links, oldest first, one batch per call.
// It returns how many links were completed.
func (s *Service) Recheck(ctx context.Context) (int, error) {
	pending, err := s.store.PendingLinks(ctx, s.cfg.CompanyID, s.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("pending links: %w", err)
	}
	defer s.refreshGauge(ctx)
	if len(pending) == 0 {
		return 0, nil
	}
	s.log.Debug("rechecking pending links", logx.Int("count", len(pending)))

	linked := 0
	for _, l := range pending {
		if err := s.sleep(ctx, s.cfg.Throttle); err != nil {
			return linked, err
		}
		found, err := s.dir.FindClientByPhone(ctx, s.cfg.CompanyID, l.Phone)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return linked, err
			}
			s.log.Warn("recheck search failed", logx.String("phone", l.Phone), logx.Err(err))
			continue
		}
		if found == nil || found.ID == 0 {
			continue
		}
		if _, ok, err := s.store.MarkLinked(ctx, s.cfg.CompanyID, l.TelegramUserID, found.ID.Int64()); err != nil || !ok {
			s.log.Warn("recheck mark linked failed", logx.Int64("user_id", l.TelegramUserID), logx.Err(err))
			continue
		}
		linked++
		s.log.Info("pending link completed", logx.Int64("user_id", l.TelegramUserID), logx.Int64("client_id", found.ID.Int64()))

		if err := s.send.Notify(ctx, kit.Notification{
			Channel:  "client",
			Priority: 6,
			Target:   kit.ChatTarget{ChatID: l.TelegramChatID},
			Text:     autoLinkedClientText(l.Phone),
		}); err != nil {
			s.log.Warn("client notify failed", logx.Err(err))
		}
		s.notifyAdmin(ctx, autoLinkedAdminText(l, found.ID.Int64(), s.cfg.CompanyID))
	}
	return linked, nil
}

func (s *Service) notifyAdmin(ctx context.Context, text string) {
	if s.cfg.AdminChat.ChatID == 0 || s.send == nil {
		return
	}
	err := s.send.Notify(ctx, kit.Notification{
		Channel:  "admin",
		Priority: 5,
		Target:   s.cfg.AdminChat,
		Text:     text,
		Options:  &kit.SendOptions{DisablePreview: true},
	})
	if err != nil {
		s.log.Warn("admin notify failed", logx.Err(err))
	}
}

func (s *Service) refreshGauge(ctx context.Context) {
	n, err := s.store.CountPending(ctx, s.cfg.CompanyID)
	if err != nil {
		return
	}
	metrics.PendingLinksGauge.Set(float64(n))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func clientNotFoundText(p string, userID, chatID, companyID int64) string {
	return strings.Join([]string{
		"⚠️ Aquabot: клиент не найден в YCLIENTS по номеру.",
		"",
		"Телефон: " + p,
		fmt.Sprintf("Telegram user_id: %d", userID),
		fmt.Sprintf("Telegram chat_id: %d", chatID),
		fmt.Sprintf("Компания: %d", companyID),
		"",
		"Связка сохранена как pending и будет перепроверяться автоматически.",
	}, "\n")
}

func contactErrorText(userID int64, err error) string {
	msg := "unknown"
	if err != nil {
		msg = err.Error()
	}
	if len(msg) > 1000 {
		msg = msg[:1000]
	}
	return strings.Join([]string{
		"🚨 Aquabot: ошибка при обработке контакта.",
		"",
		fmt.Sprintf("Telegram user_id: %d", userID),
		"Ошибка: " + msg,
	}, "\n")
}

func autoLinkedClientText(p string) string {
	return "✅ Мы нашли вас в системе и подключили уведомления.\nНомер: " + p
}

func autoLinkedAdminText(l storage.Link, clientID, companyID int64) string {
	return strings.Join([]string{
		"✅ Aquabot: клиент автоматически привязан.",
		"",
		"Телефон: " + l.Phone,
		fmt.Sprintf("Telegram user_id: %d", l.TelegramUserID),
		fmt.Sprintf("Yclients client_id: %d", clientID),
		fmt.Sprintf("Компания: %d", companyID),
	}, "\n")
}
