package room

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	nanoid "github.com/jaevor/go-nanoid"
	"go.uber.org/zap"

	"github.com/wfunc/quizserver/broadcast"
	"github.com/wfunc/quizserver/logger"
	"github.com/wfunc/quizserver/models"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 6
)

var validate = validator.New()

// CodeReserver reserves room codes outside this process so several servers never hand out the same code.
//
//go:generate mockgen -destination=../mocks/mock_code_reserver.go -package=mocks github.com/wfunc/quizserver/room CodeReserver
type CodeReserver interface {
	Reserve(ctx context.Context, code string) (bool, error)
	// Refresh extends the reservation of a code that is still in use.
	Refresh(ctx context.Context, code string) error
	Release(ctx context.Context, code string) error
}

// Registry 管理所有房间
type Registry struct {
	rooms    map[string]*Room
	mutex    sync.RWMutex
	bus      broadcast.Bus
	codes    CodeReserver
	generate func() string
	attempts int
	expiry   time.Duration
	now      func() time.Time
	log      *zap.SugaredLogger
}

type RegistryOption func(*Registry)

func WithCodeReserver(c CodeReserver) RegistryOption {
	return func(r *Registry) { r.codes = c }
}

// WithCodeGenerator replaces the random code source.
func WithCodeGenerator(gen func() string) RegistryOption {
	return func(r *Registry) { r.generate = gen }
}

func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// NewRegistry 创建一个新的房间注册表
func NewRegistry(bus broadcast.Bus, attempts int, expiry time.Duration, opts ...RegistryOption) (*Registry, error) {
	gen, err := nanoid.CustomASCII(codeAlphabet, codeLength)
	if err != nil {
		return nil, fmt.Errorf("room code generator: %w", err)
	}
	if attempts < 1 {
		attempts = 1
	}
	r := &Registry{
		rooms:    make(map[string]*Room),
		bus:      bus,
		generate: gen,
		attempts: attempts,
		expiry:   expiry,
		now:      time.Now,
		log:      logger.Log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// NormalizeCode upper-cases a user supplied code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CreateRoom 创建一个新房间并添加到注册表
func (m *Registry) CreateRoom(ctx context.Context, host models.Identity, game models.GameConfig, opts models.RoomOptions) (*Room, error) {
	if err := validate.Struct(opts); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidPayload, err)
	}
	if !game.Variant.Valid() {
		return nil, models.ErrUnknownGame
	}

	maxPlayers := opts.MaxPlayers
	if maxPlayers == 0 {
		maxPlayers = game.MaxPlayers
	}
	minPlayers := max(opts.MinPlayers, game.MinPlayers, 2)
	if maxPlayers < 2 || maxPlayers < game.MinPlayers || maxPlayers < minPlayers {
		return nil, models.ErrCapacity
	}

	for i := 0; i < m.attempts; i++ {
		code := m.generate()
		if !m.reserveRemote(ctx, code) {
			continue
		}

		m.mutex.Lock()
		if _, taken := m.rooms[code]; taken {
			m.mutex.Unlock()
			m.releaseRemote(code)
			continue
		}
		room := NewRoom(code, host.UserID, game, minPlayers, maxPlayers, m.now())
		m.rooms[code] = room
		m.mutex.Unlock()

		m.log.Infof("Room %s created by %s for game %s", code, host.UserID, game.GameID)
		m.bus.PublishToRoom(broadcast.LobbyChannel, models.EventRoomCreated, room.Summary())
		return room, nil
	}
	m.log.Errorf("Room code generation failed after %d attempts", m.attempts)
	return nil, models.ErrCodeGeneration
}

func (m *Registry) reserveRemote(ctx context.Context, code string) bool {
	if m.codes == nil {
		return true
	}
	ok, err := m.codes.Reserve(ctx, code)
	if err != nil {
		m.log.Warnf("Reserve code %s failed: %v", code, err)
		return false
	}
	return ok
}

func (m *Registry) releaseRemote(code string) {
	if m.codes == nil {
		return
	}
	if err := m.codes.Release(context.Background(), code); err != nil {
		m.log.Warnf("Release code %s failed: %v", code, err)
	}
}

// RefreshCodes extends the outside reservation of every live room and returns how many succeeded.
func (m *Registry) RefreshCodes(ctx context.Context) int {
	if m.codes == nil {
		return 0
	}
	m.mutex.RLock()
	codes := make([]string, 0, len(m.rooms))
	for code := range m.rooms {
		codes = append(codes, code)
	}
	m.mutex.RUnlock()
	sort.Strings(codes)

	refreshed := 0
	for _, code := range codes {
		if err := m.codes.Refresh(ctx, code); err != nil {
			m.log.Warnf("Refresh code %s failed: %v", code, err)
			continue
		}
		refreshed++
	}
	return refreshed
}

// GetRoom 从注册表中获取一个房间
func (m *Registry) GetRoom(code string) (*Room, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	room, ok := m.rooms[NormalizeCode(code)]
	if !ok {
		return nil, models.ErrRoomNotFound
	}
	return room, nil
}

// ListActiveRooms 大厅列表，不包含已过期未开始的房间
func (m *Registry) ListActiveRooms() []models.RoomSummary {
	now := m.now()

	m.mutex.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		rooms = append(rooms, room)
	}
	m.mutex.RUnlock()

	list := make([]models.RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		if m.expired(room, now) {
			continue
		}
		list = append(list, room.Summary())
	}
	sortSummaries(list)
	return list
}

func (m *Registry) expired(room *Room, now time.Time) bool {
	if m.expiry <= 0 {
		return false
	}
	status := room.GetStatus()
	unstarted := status == models.StatusWaiting || status == models.StatusStarting
	return unstarted && now.Sub(room.CreatedAt) > m.expiry
}

// Expired returns codes of unstarted rooms past their soft expiry.
func (m *Registry) Expired(now time.Time) []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var codes []string
	for code, room := range m.rooms {
		if m.expired(room, now) {
			codes = append(codes, code)
		}
	}
	return codes
}

// RemoveRoom 从注册表中移除一个房间，房间码随之释放
func (m *Registry) RemoveRoom(code string) bool {
	code = NormalizeCode(code)

	m.mutex.Lock()
	_, ok := m.rooms[code]
	delete(m.rooms, code)
	m.mutex.Unlock()

	if !ok {
		return false
	}
	m.releaseRemote(code)
	m.log.Infof("Room %s removed", code)
	m.bus.PublishToRoom(broadcast.LobbyChannel, models.EventRoomRemoved, models.RoomSummary{Code: code})
	return true
}

func (m *Registry) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms)
}

func sortSummaries(list []models.RoomSummary) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].Code < list[j].Code
	})
}
