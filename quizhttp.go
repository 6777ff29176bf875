/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
	"golang.org/x/time/rate"

	"github.com/Seednode/quizbox/games/quiz/pack"
)

const (
	playerCookieName = "quizbox_id"

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func playerID(r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	return ""
}

func newPlayerCookie() *http.Cookie {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		errorf("GAMES: Generating player id: %v", err)

		return nil
	}

	return &http.Cookie{
		Name:     playerCookieName,
		Value:    hex.EncodeToString(buf),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func getOrSetPlayerID(w http.ResponseWriter, r *http.Request) string {
	if id := playerID(r); id != "" {
		return id
	}

	cookie := newPlayerCookie()
	if cookie == nil {
		return ""
	}
	http.SetCookie(w, cookie)

	return cookie.Value
}

// userIDFor derives the id other players see from the cookie, so the cookie
// itself never leaves the server.
func userIDFor(cookie string) string {
	sum := sha256.Sum256([]byte(cookie))

	return hex.EncodeToString(sum[:8])
}

func loadCatalog(cfg *Config) (*pack.Catalog, error) {
	catalog, err := pack.Default()
	if err != nil {
		return nil, err
	}

	if cfg.packsDir != "" {
		extra, err := pack.Load(os.DirFS(cfg.packsDir), ".")
		if err != nil {
			return nil, fmt.Errorf("loading packs from %s: %w", cfg.packsDir, err)
		}

		catalog = catalog.Merge(extra)
	}

	logf(cfg, "START: Loaded %d question packs", catalog.Len())

	return catalog, nil
}

func serveQuizWS(cfg *Config, qm *quizManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		id := playerID(r)

		// The upgrade response is written by the upgrader, so a new cookie
		// has to travel in its header.
		var header http.Header
		if id == "" {
			cookie := newPlayerCookie()
			if cookie == nil {
				http.Error(w, "unable to assign player id", http.StatusInternalServerError)

				return
			}
			id = cookie.Value
			header = http.Header{"Set-Cookie": {cookie.String()}}
		}

		conn, err := upgrader.Upgrade(w, r, header)
		if err != nil {
			errorf("SERVE: WebSocket upgrade for %s failed: %v", realIP(r), err)

			return
		}

		c := newQuizClient(uuid.NewString(), userIDFor(id))
		limiter := rate.NewLimiter(rate.Limit(cfg.messageRate), cfg.messageBurst)

		logf(cfg, "SERVE: Quiz connection %s opened from %s", c.id, realIP(r))

		go writePump(conn, c)
		qm.readPump(conn, c, limiter)

		logf(cfg, "SERVE: Quiz connection %s closed", c.id)
	}
}

func (qm *quizManager) readPump(conn *websocket.Conn, c *quizClient, limiter *rate.Limiter) {
	defer func() {
		qm.disconnect(c)
		_ = conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		if !limiter.Allow() {
			c.trySend(newErrorMessage(errRateLimited))

			continue
		}

		var msg quizInbound
		if err := json.Unmarshal(data, &msg); err != nil {
			c.trySend(newErrorMessage(errMalformedPacket))

			continue
		}

		qm.handle(c, msg)
	}
}

func writePump(conn *websocket.Conn, c *quizClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})

				return
			}

			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// serveQR renders a PNG QR code of a room's join URL.
func (qm *quizManager) serveQR(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		code := ps.ByName("code")
		if qm.hub(code) == nil {
			http.NotFound(w, r)

			return
		}

		scheme := cfg.scheme()
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		url := scheme + "://" + r.Host + strings.TrimSuffix(r.URL.Path, "/qr")

		const qrSize = 320

		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)

			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		securityHeaders(cfg, w)
		_, _ = w.Write(png)
	}
}

func serveJSON(cfg *Config, errs chan<- error, w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	securityHeaders(cfg, w)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		errs <- err
	}
}

func serveQuizRooms(cfg *Config, qm *quizManager, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		serveJSON(cfg, errs, w, qm.store.ListActive())
	}
}

func serveQuizPacks(cfg *Config, catalog *pack.Catalog, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		serveJSON(cfg, errs, w, catalog.List())
	}
}

// registerQuizGame sets up routes so that:
//   - $path            → HTML client, create or join a room
//   - $path/:code      → HTML client for one room
//   - $path/:code/qr   → PNG QR code for that room's URL
//   - /api$path/ws     → WebSocket, one per tab
//   - /api$path/rooms  → joinable rooms
//   - /api$path/packs  → available question packs
func registerQuizGame(cfg *Config, path string, mux *httprouter.Router, catalog *pack.Catalog, errs chan<- error) *quizManager {
	qm := newQuizManager(cfg, catalog)

	mux.GET(cfg.prefix+path, serveQuizPage(cfg, errs))
	mux.GET(cfg.prefix+path+"/:code", serveQuizPage(cfg, errs))
	mux.GET(cfg.prefix+path+"/:code/qr", qm.serveQR(cfg))

	mux.GET(cfg.prefix+"/api"+path+"/ws", serveQuizWS(cfg, qm))
	mux.GET(cfg.prefix+"/api"+path+"/rooms", serveQuizRooms(cfg, qm, errs))
	mux.GET(cfg.prefix+"/api"+path+"/packs", serveQuizPacks(cfg, catalog, errs))

	return qm
}
