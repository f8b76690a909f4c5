package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"protodesk/internal/domain"
	"protodesk/internal/events"
	"protodesk/internal/lock"
	"protodesk/internal/repo"
	"protodesk/internal/status"
	"protodesk/internal/storage"
	"protodesk/internal/timeline"
)

const createdNote = "Protocol created"

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Statuses *status.Registry
	Storage  storage.Store
	Logger   *zap.Logger
	Now      func() time.Time

	locks    *lock.MutexMap
	validate *validator.Validate
}

func New(db *sql.DB, statuses *status.Registry, store storage.Store, logger *zap.Logger) Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Events:   events.Writer{DB: db},
		Statuses: statuses,
		Storage:  store,
		Logger:   logger,
		Now:      time.Now,
		locks:    lock.NewMutexMap(),
		validate: newValidator(),
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e Engine) log() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// check runs struct validation and reports the first failing field.
func (e Engine) check(v any) error {
	val := e.validate
	if val == nil {
		val = newValidator()
	}
	err := val.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &domain.ValidationError{Field: fe.Field(), Reason: describe(fe)}
	}
	return &domain.ValidationError{Reason: err.Error()}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "email":
		return "must be a valid email address"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	}
	return "failed " + fe.Tag()
}

// storageErr leaves domain errors untouched and wraps everything else as a StorageError.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrInvalidTransition) || errors.Is(err, domain.ErrStorage) {
		return err
	}
	return &domain.StorageError{Op: op, Err: err}
}

func (e Engine) lockProtocol(id int64) func() {
	if e.locks == nil {
		return func() {}
	}
	e.locks.Lock(id)
	return func() { e.locks.Unlock(id) }
}

func requireActor(actorID int64) error {
	if actorID <= 0 {
		return &domain.ValidationError{Field: "actor_id", Reason: "must be greater than 0"}
	}
	return nil
}

// ProtocolCreateOptions are parameters for creating a protocol. StatusID 0 selects the
// default status.
type ProtocolCreateOptions struct {
	Title              string     `json:"title" validate:"required,max=200"`
	Description        string     `json:"description" validate:"required"`
	CustomerID         int64      `json:"customer_id" validate:"gt=0"`
	AssignedTo         int64      `json:"assigned_to" validate:"gt=0"`
	StatusID           int64      `json:"status_id" validate:"gte=0"`
	Priority           string     `json:"priority" validate:"required"`
	DateRequired       *time.Time `json:"date_required"`
	ExpectedCompletion *time.Time `json:"expected_completion"`
	ActorID            int64      `json:"actor_id" validate:"gt=0"`
}

func (e Engine) CreateProtocol(ctx context.Context, opts ProtocolCreateOptions) (domain.Protocol, error) {
	opts.Title = strings.TrimSpace(opts.Title)
	opts.Description = strings.TrimSpace(opts.Description)
	if err := e.check(opts); err != nil {
		return domain.Protocol{}, err
	}
	priority, err := domain.ParsePriority(opts.Priority)
	if err != nil {
		return domain.Protocol{}, err
	}
	initial := e.Statuses.Default()
	if opts.StatusID != 0 {
		initial, err = e.Statuses.Get(opts.StatusID)
		if err != nil {
			return domain.Protocol{}, &domain.ValidationError{Field: "status_id", Reason: fmt.Sprintf("unknown status %d", opts.StatusID)}
		}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Protocol{}, storageErr("begin", err)
	}
	defer tx.Rollback()
	r := e.Repo.WithTx(tx)

	if _, err := r.GetCustomer(ctx, opts.CustomerID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Protocol{}, &domain.ValidationError{Field: "customer_id", Reason: fmt.Sprintf("unknown customer %d", opts.CustomerID)}
		}
		return domain.Protocol{}, storageErr("get customer", err)
	}
	if _, err := r.GetPersonnel(ctx, opts.AssignedTo); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Protocol{}, &domain.ValidationError{Field: "assigned_to", Reason: fmt.Sprintf("unknown personnel %d", opts.AssignedTo)}
		}
		return domain.Protocol{}, storageErr("get personnel", err)
	}

	now := e.now()
	number, err := r.NextProtocolNumber(ctx, now.Year())
	if err != nil {
		return domain.Protocol{}, storageErr("allocate protocol number", err)
	}
	p := domain.Protocol{
		Number:             number,
		Title:              opts.Title,
		Description:        opts.Description,
		CustomerID:         opts.CustomerID,
		AssignedTo:         opts.AssignedTo,
		StatusID:           initial.ID,
		Priority:           priority,
		DateRequired:       opts.DateRequired,
		ExpectedCompletion: opts.ExpectedCompletion,
		CreatedBy:          opts.ActorID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if initial.IsTerminal {
		p.ClosedAt = &now
	}
	p, err = r.InsertProtocol(ctx, p)
	if err != nil {
		return domain.Protocol{}, storageErr("insert protocol", err)
	}
	if _, err := e.Events.AppendStatusChange(ctx, tx, domain.StatusChange{
		EventHeader: domain.EventHeader{ProtocolID: p.ID, ActorID: opts.ActorID, CreatedAt: now},
		NewStatusID: initial.ID,
		Notes:       createdNote,
	}); err != nil {
		return domain.Protocol{}, storageErr("append status change", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Protocol{}, storageErr("commit", err)
	}
	e.log().Debug("protocol created", zap.Int64("protocol_id", p.ID), zap.String("number", p.Number), zap.Int64("status_id", p.StatusID))
	return p, nil
}

// ChangeStatus moves a protocol to newStatusID. Terminal statuses have no outgoing
// transitions and a change to the current status is rejected.
func (e Engine) ChangeStatus(ctx context.Context, protocolID, newStatusID, actorID int64, notes string) (domain.StatusChange, error) {
	if err := requireActor(actorID); err != nil {
		return domain.StatusChange{}, err
	}
	target, err := e.Statuses.Get(newStatusID)
	if err != nil {
		return domain.StatusChange{}, err
	}
	unlock := e.lockProtocol(protocolID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.StatusChange{}, storageErr("begin", err)
	}
	defer tx.Rollback()
	r := e.Repo.WithTx(tx)

	p, err := r.GetProtocol(ctx, protocolID)
	if err != nil {
		return domain.StatusChange{}, storageErr("get protocol", err)
	}
	if p.StatusID == newStatusID {
		return domain.StatusChange{}, &domain.TransitionError{From: p.StatusID, To: newStatusID, Reason: "protocol already has this status"}
	}
	if current, err := e.Statuses.Get(p.StatusID); err == nil && current.IsTerminal {
		return domain.StatusChange{}, &domain.TransitionError{From: p.StatusID, To: newStatusID, Reason: fmt.Sprintf("status %q is terminal", current.Name)}
	}

	now := e.now()
	prev := p.StatusID
	p.StatusID = newStatusID
	p.UpdatedAt = now
	p.ClosedAt = nil
	if target.IsTerminal {
		p.ClosedAt = &now
	}
	if err := r.UpdateProtocolStatus(ctx, p); err != nil {
		return domain.StatusChange{}, storageErr("update protocol status", err)
	}
	evt, err := e.Events.AppendStatusChange(ctx, tx, domain.StatusChange{
		EventHeader:      domain.EventHeader{ProtocolID: protocolID, ActorID: actorID, CreatedAt: now},
		PreviousStatusID: &prev,
		NewStatusID:      newStatusID,
		Notes:            strings.TrimSpace(notes),
	})
	if err != nil {
		return domain.StatusChange{}, storageErr("append status change", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.StatusChange{}, storageErr("commit", err)
	}
	e.log().Debug("protocol status changed",
		zap.Int64("protocol_id", protocolID), zap.Int64("from", prev), zap.Int64("to", newStatusID), zap.Int64("actor_id", actorID))
	return evt, nil
}

func (e Engine) AddComment(ctx context.Context, protocolID, actorID int64, content string) (domain.Comment, error) {
	if err := requireActor(actorID); err != nil {
		return domain.Comment{}, err
	}
	if strings.TrimSpace(content) == "" {
		return domain.Comment{}, &domain.ValidationError{Field: "content", Reason: "is required"}
	}
	unlock := e.lockProtocol(protocolID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Comment{}, storageErr("begin", err)
	}
	defer tx.Rollback()
	c, err := e.Events.AppendComment(ctx, tx, domain.Comment{
		EventHeader: domain.EventHeader{ProtocolID: protocolID, ActorID: actorID, CreatedAt: e.now()},
		Content:     content,
	})
	if err != nil {
		return domain.Comment{}, storageErr("append comment", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Comment{}, storageErr("commit", err)
	}
	return c, nil
}

// AddAttachment records metadata for bytes that were already stored.
func (e Engine) AddAttachment(ctx context.Context, protocolID, actorID int64, desc domain.AttachmentDescriptor) (domain.Attachment, error) {
	if err := requireActor(actorID); err != nil {
		return domain.Attachment{}, err
	}
	desc.FileName = strings.TrimSpace(desc.FileName)
	if desc.FileName == "" {
		return domain.Attachment{}, &domain.ValidationError{Field: "file_name", Reason: "is required"}
	}
	if desc.FileSize < 0 {
		return domain.Attachment{}, &domain.ValidationError{Field: "file_size", Reason: "must not be negative"}
	}
	unlock := e.lockProtocol(protocolID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Attachment{}, storageErr("begin", err)
	}
	defer tx.Rollback()
	if desc.Locator != "" && e.Storage != nil {
		size, err := e.Storage.Stat(ctx, desc.Locator)
		if err != nil {
			return domain.Attachment{}, &domain.ValidationError{Field: "locator", Reason: "does not name a stored file"}
		}
		taken, err := events.LocatorRecorded(ctx, tx, desc.Locator)
		if err != nil {
			return domain.Attachment{}, storageErr("check locator", err)
		}
		if taken {
			return domain.Attachment{}, &domain.ValidationError{Field: "locator", Reason: "is already attached"}
		}
		desc.FileSize = size
	}
	a, err := e.Events.AppendAttachment(ctx, tx, domain.Attachment{
		EventHeader: domain.EventHeader{ProtocolID: protocolID, ActorID: actorID, CreatedAt: e.now()},
		FileName:    desc.FileName,
		FileSize:    desc.FileSize,
		ContentType: desc.ContentType,
		Locator:     desc.Locator,
		Description: desc.Description,
	})
	if err != nil {
		return domain.Attachment{}, storageErr("append attachment", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Attachment{}, storageErr("commit", err)
	}
	return a, nil
}

// UploadAttachment stores the bytes first and records metadata only once they are safe.
// If recording fails the stored object is removed again.
func (e Engine) UploadAttachment(ctx context.Context, protocolID, actorID int64, name, contentType, description string, body io.Reader) (domain.Attachment, error) {
	if e.Storage == nil {
		return domain.Attachment{}, &domain.StorageError{Op: "upload", Err: errors.New("no file storage configured")}
	}
	if err := requireActor(actorID); err != nil {
		return domain.Attachment{}, err
	}
	if strings.TrimSpace(name) == "" {
		return domain.Attachment{}, &domain.ValidationError{Field: "file_name", Reason: "is required"}
	}
	if _, err := e.Repo.GetProtocol(ctx, protocolID); err != nil {
		return domain.Attachment{}, storageErr("get protocol", err)
	}
	locator, size, err := e.Storage.Put(ctx, name, body)
	if err != nil {
		return domain.Attachment{}, &domain.StorageError{Op: "store file", Err: err}
	}
	a, err := e.AddAttachment(ctx, protocolID, actorID, domain.AttachmentDescriptor{
		FileName:    name,
		FileSize:    size,
		ContentType: contentType,
		Locator:     locator,
		Description: description,
	})
	if err != nil {
		if derr := e.Storage.Delete(context.WithoutCancel(ctx), locator); derr != nil {
			e.log().Warn("remove orphaned upload", zap.String("locator", locator), zap.Error(derr))
		}
		return domain.Attachment{}, err
	}
	return a, nil
}

// OpenAttachment returns the stored bytes of an attachment recorded on protocolID.
func (e Engine) OpenAttachment(ctx context.Context, protocolID, attachmentID int64) (domain.Attachment, io.ReadCloser, error) {
	if e.Storage == nil {
		return domain.Attachment{}, nil, &domain.StorageError{Op: "open", Err: errors.New("no file storage configured")}
	}
	evts, err := e.EventLog(ctx, protocolID)
	if err != nil {
		return domain.Attachment{}, nil, err
	}
	for _, evt := range evts {
		a, ok := evt.(domain.Attachment)
		if !ok || a.ID != attachmentID {
			continue
		}
		rc, err := e.Storage.Open(ctx, a.Locator)
		if err != nil {
			return a, nil, &domain.StorageError{Op: "open file", Err: err}
		}
		return a, rc, nil
	}
	return domain.Attachment{}, nil, domain.NotFound("attachment", attachmentID)
}

// EventLog returns the raw event log of a protocol in append order.
func (e Engine) EventLog(ctx context.Context, protocolID int64) ([]domain.Event, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("begin", err)
	}
	defer tx.Rollback()
	if _, err := e.Repo.WithTx(tx).GetProtocol(ctx, protocolID); err != nil {
		return nil, storageErr("get protocol", err)
	}
	evts, err := events.List(ctx, tx, protocolID)
	if err != nil {
		return nil, storageErr("list events", err)
	}
	return evts, nil
}

// Timeline composes the protocol's event log, newest first.
func (e Engine) Timeline(ctx context.Context, protocolID int64) ([]timeline.Item, error) {
	evts, err := e.EventLog(ctx, protocolID)
	if err != nil {
		return nil, err
	}
	return timeline.Compose(evts, e.Statuses), nil
}
