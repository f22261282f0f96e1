package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
)

type config struct {
	wsURL      string
	secret     string
	role       string
	userPrefix string
	connCount  int
	userCount  int
	duration   time.Duration
	dialEvery  time.Duration
}

type counters struct {
	opened    int64
	failed    int64
	messages  int64
	badFrames int64
}

type pushPayload struct {
	AlarmCount int   `json:"alarmCount"`
	Timestamp  int64 `json:"timestamp"`
}

func main() {
	cfg := parseConfig()
	if cfg.secret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	if cfg.connCount <= 0 {
		log.Fatal("conns must be > 0")
	}
	if cfg.userCount <= 0 {
		cfg.userCount = cfg.connCount
	}

	tokens, err := mintTokens(cfg)
	if err != nil {
		log.Fatalf("mint tokens: %v", err)
	}

	log.Printf("opening %d connections across %d users against %s", cfg.connCount, cfg.userCount, cfg.wsURL)

	var stats counters
	var readers sync.WaitGroup
	conns := make([]*websocket.Conn, 0, cfg.connCount)

	for i := 0; i < cfg.connCount; i++ {
		token := tokens[i%cfg.userCount]
		conn, err := dial(cfg.wsURL, token)
		if err != nil {
			atomic.AddInt64(&stats.failed, 1)
			log.Printf("dial %d failed: %v", i+1, err)
			continue
		}
		atomic.AddInt64(&stats.opened, 1)
		conns = append(conns, conn)

		readers.Add(1)
		go func(c *websocket.Conn) {
			defer readers.Done()
			readLoop(c, &stats)
		}(conn)

		if cfg.dialEvery > 0 {
			time.Sleep(cfg.dialEvery)
		}
	}

	log.Printf("connections open: %d failed: %d, holding for %s", atomic.LoadInt64(&stats.opened), atomic.LoadInt64(&stats.failed), cfg.duration)
	time.Sleep(cfg.duration)

	for _, conn := range conns {
		_ = conn.Close()
	}
	readers.Wait()

	messages := atomic.LoadInt64(&stats.messages)
	perSecond := float64(messages) / cfg.duration.Seconds()
	log.Printf("done: opened=%d failed=%d messages=%d bad_frames=%d rate=%.1f msg/s",
		atomic.LoadInt64(&stats.opened),
		atomic.LoadInt64(&stats.failed),
		messages,
		atomic.LoadInt64(&stats.badFrames),
		perSecond,
	)
}

func parseConfig() config {
	cfg := config{}
	flag.StringVar(&cfg.wsURL, "url", envOrDefault("WS_URL", "ws://localhost:8080/ws"), "websocket endpoint")
	flag.StringVar(&cfg.secret, "secret", envOrDefault("AUTH_JWT_SECRET", ""), "JWT signing secret")
	flag.StringVar(&cfg.role, "role", envOrDefault("WS_ROLE", "viewer"), "role claim for minted tokens")
	flag.StringVar(&cfg.userPrefix, "user-prefix", envOrDefault("USER_PREFIX", "user-load-"), "user id prefix, matches the seed tool")
	flag.IntVar(&cfg.connCount, "conns", envOrInt("WS_CONNS", 100), "connections to open")
	flag.IntVar(&cfg.userCount, "users", envOrInt("WS_USERS", 0), "distinct users to spread connections over (0 = one per connection)")
	flag.DurationVar(&cfg.duration, "duration", envOrDuration("WS_DURATION", time.Minute), "how long to hold connections open")
	flag.DurationVar(&cfg.dialEvery, "dial-every", envOrDuration("WS_DIAL_EVERY", 0), "pause between dials")
	flag.Parse()
	return cfg
}

func mintTokens(cfg config) ([]string, error) {
	tokens := make([]string, 0, cfg.userCount)
	expiry := time.Now().Add(cfg.duration + time.Hour)
	for u := 0; u < cfg.userCount; u++ {
		claims := jwt.MapClaims{
			"user_id": fmt.Sprintf("%s%04d", cfg.userPrefix, u+1),
			"role":    cfg.role,
			"exp":     expiry.Unix(),
			"iat":     time.Now().Unix(),
		}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.secret))
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, signed)
	}
	return tokens, nil
}

func dial(rawURL, token string) (*websocket.Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	query := u.Query()
	query.Set("access_token", token)
	u.RawQuery = query.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.Dial(u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w (http %d)", err, resp.StatusCode)
		}
		return nil, err
	}
	return conn, nil
}

func readLoop(conn *websocket.Conn, stats *counters) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		atomic.AddInt64(&stats.messages, 1)
		var payload pushPayload
		if err := json.Unmarshal(data, &payload); err != nil || payload.Timestamp == 0 {
			atomic.AddInt64(&stats.badFrames, 1)
		}
	}
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envOrDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return value
}
