package upload

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"docchat/internal/config"
	"docchat/internal/model"
	"docchat/internal/storage"
)

var (
	ErrInvalidInput      = errors.New("invalid upload input")
	ErrInvalidChunkIndex = errors.New("part index out of range")
	ErrIncompleteUpload  = errors.New("upload is not complete")
	ErrSessionNotFound   = errors.New("upload session not found")
)

const (
	sessionRoot = "uploads"
	metaObject  = "session.json"
)

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Manager tracks in-progress multi-part uploads. All session state lives in
// the blob namespace: the immutable session descriptor at
// uploads/<id>/session.json and one object per received part at
// uploads/<id>/parts/<index>. Because the store offers atomic per-key writes,
// concurrent StorePart calls need no coordination.
type Manager struct {
	store   storage.Storage
	cfg     config.UploadConfig
	allowed map[string]struct{}

	mergeMu sync.Mutex
	merging map[string]*sync.Mutex
}

// NewManager creates an upload session manager. allowedTypes is the set of
// media types accepted at initialization.
func NewManager(store storage.Storage, cfg config.UploadConfig, allowedTypes []string) *Manager {
	allowed := make(map[string]struct{}, len(allowedTypes))
	for _, t := range allowedTypes {
		allowed[t] = struct{}{}
	}
	return &Manager{
		store:   store,
		cfg:     cfg,
		allowed: allowed,
		merging: make(map[string]*sync.Mutex),
	}
}

// PartMetadata identifies the logical upload a part belongs to. StartedAt is
// fixed by the client at first-part time so retries and out-of-order parts
// for the same upload always derive the same session.
type PartMetadata struct {
	OwnerID     string
	Filename    string
	TotalSize   int64
	ContentType string
	StartedAt   time.Time
}

// Initialize validates the declared upload and returns its part plan.
func (m *Manager) Initialize(ctx context.Context, ownerID, filename string, size int64, contentType string) (Plan, error) {
	if size <= 0 {
		return Plan{}, fmt.Errorf("%w: size must be positive", ErrInvalidInput)
	}
	if _, ok := m.allowed[contentType]; !ok {
		return Plan{}, fmt.Errorf("%w: unsupported media type %q", ErrInvalidInput, contentType)
	}
	if strings.TrimSpace(filename) == "" || ownerID == "" {
		return Plan{}, fmt.Errorf("%w: owner and filename are required", ErrInvalidInput)
	}
	return PartPlan(m.cfg, size), nil
}

// StorePart persists one part, overwriting any prior part at the same index
// (idempotent retry, last write wins). The session descriptor is written on
// every call; it is derived from the same metadata, so the overwrite is a
// no-op in content.
func (m *Manager) StorePart(ctx context.Context, meta PartMetadata, index int, data []byte) (string, error) {
	plan, err := m.Initialize(ctx, meta.OwnerID, meta.Filename, meta.TotalSize, meta.ContentType)
	if err != nil {
		return "", err
	}
	if index < 0 || index >= plan.PartCount {
		return "", fmt.Errorf("%w: index %d, total parts %d", ErrInvalidChunkIndex, index, plan.PartCount)
	}

	sessionID := DeriveSessionID(meta.OwnerID, meta.Filename, meta.StartedAt)
	session := model.UploadSession{
		ID:          sessionID,
		OwnerID:     meta.OwnerID,
		Filename:    sanitizeFilename(meta.Filename),
		TotalSize:   meta.TotalSize,
		PartSize:    plan.PartSize,
		PartCount:   plan.PartCount,
		ContentType: meta.ContentType,
		CreatedAt:   meta.StartedAt.UTC(),
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return "", err
	}
	if _, err := m.store.Put(ctx, metaKey(sessionID), bytes.NewReader(payload), storage.PutObjectOptions{
		Size:        int64(len(payload)),
		ContentType: "application/json",
	}); err != nil {
		return "", fmt.Errorf("store session descriptor: %w", err)
	}

	if _, err := m.store.Put(ctx, partKey(sessionID, index), bytes.NewReader(data), storage.PutObjectOptions{
		Size: int64(len(data)),
	}); err != nil {
		return "", fmt.Errorf("store part %d: %w", index, err)
	}
	return sessionID, nil
}

// Session loads the descriptor of an existing upload session.
func (m *Manager) Session(ctx context.Context, sessionID string) (*model.UploadSession, error) {
	rc, _, err := m.store.Get(ctx, metaKey(sessionID))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	defer rc.Close()

	var session model.UploadSession
	if err := json.NewDecoder(rc).Decode(&session); err != nil {
		return nil, fmt.Errorf("decode session descriptor: %w", err)
	}
	return &session, nil
}

// IsComplete reports whether every index in [0, partCount) has a stored part.
// It is side-effect free; completion is polled, never pushed.
func (m *Manager) IsComplete(ctx context.Context, sessionID string) (bool, error) {
	session, err := m.Session(ctx, sessionID)
	if err != nil {
		return false, err
	}
	received, err := m.receivedParts(ctx, sessionID)
	if err != nil {
		return false, err
	}
	for i := 0; i < session.PartCount; i++ {
		if _, ok := received[i]; !ok {
			return false, nil
		}
	}
	return true, nil
}

// Progress reports how many parts have arrived.
func (m *Manager) Progress(ctx context.Context, sessionID string) (model.UploadProgress, error) {
	session, err := m.Session(ctx, sessionID)
	if err != nil {
		return model.UploadProgress{}, err
	}
	received, err := m.receivedParts(ctx, sessionID)
	if err != nil {
		return model.UploadProgress{}, err
	}
	uploaded := 0
	for i := 0; i < session.PartCount; i++ {
		if _, ok := received[i]; ok {
			uploaded++
		}
	}
	return model.UploadProgress{
		Uploaded:   uploaded,
		Total:      session.PartCount,
		Percentage: float64(uploaded) / float64(session.PartCount) * 100,
	}, nil
}

// Cancel removes all parts and the session descriptor. Cleanup is
// best-effort and idempotent: a partially-missing session is not an error,
// and individual delete failures are logged and swallowed.
func (m *Manager) Cancel(ctx context.Context, sessionID string) {
	objects, err := m.store.List(ctx, sessionPrefix(sessionID))
	if err != nil {
		log.Printf("upload cancel: list session %s: %v", sessionID, err)
		return
	}
	for _, obj := range objects {
		if err := m.store.Delete(ctx, obj.Key); err != nil {
			log.Printf("upload cancel: delete %s: %v", obj.Key, err)
		}
	}
}

// ReapStale removes every session whose newest object is older than the
// retention window. Sessions touched within the grace window are skipped so
// the reaper cannot race an in-progress merge.
func (m *Manager) ReapStale(ctx context.Context, now time.Time) {
	objects, err := m.store.List(ctx, sessionRoot+"/")
	if err != nil {
		log.Printf("upload reaper: list sessions: %v", err)
		return
	}

	newest := make(map[string]time.Time)
	for _, obj := range objects {
		id := sessionIDFromKey(obj.Key)
		if id == "" {
			continue
		}
		if obj.LastModified.After(newest[id]) {
			newest[id] = obj.LastModified
		}
	}

	for id, ts := range newest {
		age := now.Sub(ts)
		if age < m.cfg.Retention || age < m.cfg.ReapGrace {
			continue
		}
		log.Printf("upload reaper: removing stale session %s (age %s)", id, age)
		m.Cancel(ctx, id)
	}
}

// StartReaper runs ReapStale on a fixed interval until ctx is cancelled.
func (m *Manager) StartReaper(ctx context.Context) {
	interval := m.cfg.ReapInterval
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.ReapStale(ctx, time.Now())
			}
		}
	}()
}

// Merge concatenates all parts in index order into destKey. The session must
// be complete. Parts are streamed through a pipe, never buffered whole or
// spooled to disk, and are not deleted: callers cancel the session after a
// successful merge. On failure the destination is in an undefined partial
// state and must not be published.
//
// Merge attempts for the same session are serialized by a per-session mutex;
// a duplicate merge repeats work but cannot corrupt parts (the read side is
// immutable).
func (m *Manager) Merge(ctx context.Context, sessionID, destKey string) (storage.ObjectInfo, error) {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := m.Session(ctx, sessionID)
	if err != nil {
		return storage.ObjectInfo{}, err
	}

	received, err := m.receivedParts(ctx, sessionID)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	var totalSize int64
	for i := 0; i < session.PartCount; i++ {
		info, ok := received[i]
		if !ok {
			return storage.ObjectInfo{}, fmt.Errorf("%w: missing part %d of %d", ErrIncompleteUpload, i, session.PartCount)
		}
		totalSize += info.Size
	}

	pr, pw := io.Pipe()
	go func() {
		for i := 0; i < session.PartCount; i++ {
			rc, _, err := m.store.Get(ctx, partKey(sessionID, i))
			if err != nil {
				pw.CloseWithError(fmt.Errorf("read part %d: %w", i, err))
				return
			}
			_, err = io.Copy(pw, rc)
			rc.Close()
			if err != nil {
				pw.CloseWithError(fmt.Errorf("copy part %d: %w", i, err))
				return
			}
		}
		pw.Close()
	}()

	info, err := m.store.Put(ctx, destKey, pr, storage.PutObjectOptions{
		Size:        totalSize,
		ContentType: session.ContentType,
		Metadata: map[string]string{
			"original-filename": session.Filename,
			"upload-session":    sessionID,
		},
	})
	if err != nil {
		pr.CloseWithError(err)
		return storage.ObjectInfo{}, fmt.Errorf("merge session %s: %w", sessionID, err)
	}
	return info, nil
}

// DeriveSessionID computes the deterministic session identity so duplicate
// and out-of-order part uploads for one logical upload converge.
func DeriveSessionID(ownerID, filename string, startedAt time.Time) string {
	h := sha256.New()
	h.Write([]byte(ownerID))
	h.Write([]byte{0})
	h.Write([]byte(sanitizeFilename(filename)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(startedAt.Unix(), 10)))
	return hex.EncodeToString(h.Sum(nil))[:32]
}

func (m *Manager) receivedParts(ctx context.Context, sessionID string) (map[int]storage.ObjectInfo, error) {
	prefix := sessionPrefix(sessionID) + "parts/"
	objects, err := m.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list parts: %w", err)
	}
	received := make(map[int]storage.ObjectInfo, len(objects))
	for _, obj := range objects {
		idx, err := strconv.Atoi(strings.TrimPrefix(obj.Key, prefix))
		if err != nil {
			continue
		}
		received[idx] = obj
	}
	return received, nil
}

func (m *Manager) sessionLock(sessionID string) *sync.Mutex {
	m.mergeMu.Lock()
	defer m.mergeMu.Unlock()
	lock, ok := m.merging[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		m.merging[sessionID] = lock
	}
	return lock
}

func sessionPrefix(sessionID string) string {
	return path.Join(sessionRoot, sessionID) + "/"
}

func metaKey(sessionID string) string {
	return sessionPrefix(sessionID) + metaObject
}

func partKey(sessionID string, index int) string {
	return fmt.Sprintf("%sparts/%d", sessionPrefix(sessionID), index)
}

// sessionIDFromKey extracts the session id from uploads/<id>/... keys.
func sessionIDFromKey(key string) string {
	rest, ok := strings.CutPrefix(key, sessionRoot+"/")
	if !ok {
		return ""
	}
	id, _, ok := strings.Cut(rest, "/")
	if !ok {
		return ""
	}
	return id
}

func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	if name == "" || name == "." || name == ".." {
		name = "upload"
	}
	return name
}
