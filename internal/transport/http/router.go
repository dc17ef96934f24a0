package httptransport

import (
	"expvar"
	"fmt"
	"net/http"
	"sort"
	"strings"

	apprecords "chip-ledger/internal/app/records"
	approoms "chip-ledger/internal/app/rooms"
	"chip-ledger/internal/config"
	"chip-ledger/internal/realtime"
	"chip-ledger/internal/store"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

func init() {
	// Clients read money fields as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// LiveRooms reports how many rooms currently hold live state.
type LiveRooms interface {
	Rooms() int
}

type Deps struct {
	Store   store.Store
	Rooms   *approoms.Service
	Records *apprecords.Service
	Hub     *realtime.Hub
	Live    LiveRooms
}

func NewRouter(cfg config.ServerConfig, d Deps) *chi.Mux {
	roomHandlers := NewRoomHandlers(d.Rooms, d.Hub, cfg.WSSendBuffer, cfg.SSEPingInterval)
	recordHandlers := NewRecordHandlers(d.Records)
	wsHandler := realtime.NewWSHandler(d.Hub, realtime.WSConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		SendBuffer:     cfg.WSSendBuffer,
		PingInterval:   cfg.WSPingInterval,
	})

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.With(APILogMiddleware()).Get("/healthz", Health(d.Store, d.Live))
	r.With(APILogMiddleware()).Handle("/ws", wsHandler)

	r.Route("/api", func(r chi.Router) {
		r.Use(APILogMiddleware())
		r.Use(CORSMiddleware(cfg.AllowedOrigins))

		r.Post("/rooms", roomHandlers.Create())
		r.Route("/rooms/{roomID}", func(r chi.Router) {
			r.Get("/", roomHandlers.Get())
			r.Get("/state", roomHandlers.State())
			r.Post("/players", roomHandlers.Join())
			r.Put("/players/{playerID}", roomHandlers.UpdatePlayer())
			r.Delete("/players/{playerID}", roomHandlers.RemovePlayer())
			r.Post("/reset", roomHandlers.Reset())
			r.Put("/denomination", roomHandlers.SetDenomination())
			r.Post("/settle", roomHandlers.Settle())
			r.Get("/history", roomHandlers.History())
			r.Get("/results", recordHandlers.RoomResults())
			r.Get("/events", roomHandlers.Events())
		})

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/records", recordHandlers.UserRecords())
			r.Post("/records", recordHandlers.AddManual())
			r.Get("/stats", recordHandlers.UserStats())
			r.Get("/monthly", recordHandlers.Monthly())
			r.Get("/vs/{opponentID}", recordHandlers.HeadToHead())
			r.Put("/nickname", recordHandlers.Rename())
		})

		r.Get("/records/{recordID}/deletable", recordHandlers.CanDelete())
		r.Delete("/records/{recordID}", recordHandlers.Delete())

		r.Group(func(r chi.Router) {
			r.Use(AdminAuthMiddleware(cfg.AdminAPIKey))
			r.Route("/debug", func(r chi.Router) {
				r.Use(BodyCaptureMiddleware(4096))
				r.Get("/vars", expvar.Handler().ServeHTTP)
				r.Get("/rooms/{roomID}", roomHandlers.Debug())
			})
		})
	})
	return r
}

func Health(st store.Store, rooms LiveRooms) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		liveRooms := 0
		if rooms != nil {
			liveRooms = rooms.Rooms()
		}
		if err := st.Ping(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			writeJSON(w, map[string]any{"ok": false, "db": "down", "liveRooms": liveRooms})
			return
		}
		writeJSON(w, map[string]any{"ok": true, "db": "up", "liveRooms": liveRooms})
	}
}

func LogRoutes(r chi.Router) {
	type routeDef struct {
		Method string
		Path   string
	}
	routes := make([]routeDef, 0, 32)
	err := chi.Walk(r, func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes = append(routes, routeDef{Method: method, Path: route})
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("walk routes failed")
		return
	}
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path == routes[j].Path {
			return routes[i].Method < routes[j].Method
		}
		return routes[i].Path < routes[j].Path
	})
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Registered routes (%d):\n", len(routes)))
	for _, rt := range routes {
		b.WriteString(fmt.Sprintf("  %-6s %s\n", rt.Method, rt.Path))
	}
	fmt.Print(b.String())
}
