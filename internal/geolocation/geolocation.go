// Package geolocation - определение положения пользователя для кнопки "где я".
package geolocation

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/oschwald/maxminddb-golang"
	"go.uber.org/zap"
)

var (
	ErrPositionUnavailable = errors.New("position unavailable")
	ErrStalePosition       = errors.New("position is older than maximum age")
	ErrNoClientIP          = errors.New("client ip is unknown")
)

// Options - параметры запроса положения
type Options struct {
	HighAccuracy bool
	Timeout      time.Duration
	// MaximumAge - допустимый возраст показания; 0 - только свежее показание
	MaximumAge time.Duration
}

// LocateOptions - параметры кнопки "где я": высокая точность, 5 секунд, без кеша
var LocateOptions = Options{
	HighAccuracy: true,
	Timeout:      5 * time.Second,
	MaximumAge:   0,
}

// Position - найденное положение
type Position struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source,omitempty"`
}

// Geolocator - источник положения
type Geolocator interface {
	CurrentPosition(ctx context.Context, opts Options) (Position, error)
}

// ClientReported - положение, присланное клиентом (Geolocation API браузера).
// Показание одноразовое при MaximumAge == 0: повторно оно не используется.
type ClientReported struct {
	mu       sync.Mutex
	position *Position
	now      func() time.Time
}

// NewClientReported создает пустой источник
func NewClientReported() *ClientReported {
	return &ClientReported{now: time.Now}
}

// Report сохраняет показание клиента
func (c *ClientReported) Report(p Position) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.Timestamp.IsZero() {
		p.Timestamp = c.now()
	}
	if p.Source == "" {
		p.Source = "client"
	}
	c.position = &p
}

func (c *ClientReported) CurrentPosition(ctx context.Context, opts Options) (Position, error) {
	if err := ctx.Err(); err != nil {
		return Position{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.position == nil {
		return Position{}, ErrPositionUnavailable
	}

	p := *c.position
	if opts.MaximumAge == 0 {
		c.position = nil
		return p, nil
	}
	if c.now().Sub(p.Timestamp) > opts.MaximumAge {
		return Position{}, ErrStalePosition
	}
	return p, nil
}

type clientIPKey struct{}

// WithClientIP кладёт IP клиента в контекст для IP-геолокации
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ClientIP достаёт IP клиента из контекста
func ClientIP(ctx context.Context) (net.IP, bool) {
	raw, _ := ctx.Value(clientIPKey{}).(string)
	ip := net.ParseIP(raw)
	return ip, ip != nil
}

type cityRecord struct {
	Location struct {
		Latitude       float64 `maxminddb:"latitude"`
		Longitude      float64 `maxminddb:"longitude"`
		AccuracyRadius uint16  `maxminddb:"accuracy_radius"`
	} `maxminddb:"location"`
}

// MaxMind - положение по IP клиента из базы GeoLite2/GeoIP2 City
type MaxMind struct {
	reader *maxminddb.Reader
	logger *zap.Logger
}

// OpenMaxMind открывает базу mmdb
func OpenMaxMind(path string, logger *zap.Logger) (*MaxMind, error) {
	reader, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open geoip database: %w", err)
	}
	return &MaxMind{reader: reader, logger: logger}, nil
}

func (m *MaxMind) CurrentPosition(ctx context.Context, opts Options) (Position, error) {
	ip, ok := ClientIP(ctx)
	if !ok {
		return Position{}, ErrNoClientIP
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	type result struct {
		record cityRecord
		err    error
	}
	done := make(chan result, 1)
	go func() {
		var r result
		r.err = m.reader.Lookup(ip, &r.record)
		done <- r
	}()

	select {
	case <-ctx.Done():
		return Position{}, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return Position{}, fmt.Errorf("geoip lookup: %w", r.err)
		}
		loc := r.record.Location
		if loc.Latitude == 0 && loc.Longitude == 0 {
			return Position{}, ErrPositionUnavailable
		}
		m.logger.Debug("Position resolved by IP",
			zap.String("ip", ip.String()),
			zap.Float64("lat", loc.Latitude),
			zap.Float64("lon", loc.Longitude))
		return Position{
			Latitude:  loc.Latitude,
			Longitude: loc.Longitude,
			Accuracy:  float64(loc.AccuracyRadius) * 1000,
			Timestamp: time.Now(),
			Source:    "geoip",
		}, nil
	}
}

// Close закрывает базу
func (m *MaxMind) Close() error {
	return m.reader.Close()
}

// Chain опрашивает источники по порядку и возвращает первое найденное положение
type Chain []Geolocator

func (c Chain) CurrentPosition(ctx context.Context, opts Options) (Position, error) {
	errs := make([]error, 0, len(c))
	for _, g := range c {
		if g == nil {
			continue
		}
		p, err := g.CurrentPosition(ctx, opts)
		if err == nil {
			return p, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return Position{}, ErrPositionUnavailable
	}
	return Position{}, errors.Join(errs...)
}
