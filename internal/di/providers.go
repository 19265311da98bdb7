package di

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/wire"
	"github.com/gorilla/mux"
	"google.golang.org/grpc"
	"gorm.io/gorm"

	"gocampus/internal/chat/handler"
	"gocampus/internal/chat/repository"
	"gocampus/internal/chat/service"
	"gocampus/internal/common"
	"gocampus/internal/config"
	"gocampus/internal/dbmongo"
	"gocampus/internal/dbmysql"
	"gocampus/internal/gateway"
	"gocampus/internal/notif"
	"gocampus/internal/presence"
	"gocampus/internal/studygroup"
	"gocampus/internal/typing"
)

// Application is everything main needs to serve and shut down.
type Application struct {
	Config        *config.Config
	Logger        *slog.Logger
	HTTP          http.Handler
	GRPC          *grpc.Server
	Hub           *gateway.Hub
	Notifications *notif.NotificationService
}

var infraSet = wire.NewSet(
	ProvideLogger,
	ProvideDatabase,
	ProvideLastSeenStore,
	ProvideTokenVerifier,
	dbmysql.NewNotificationRepository,
	wire.Bind(new(notif.NotificationStore), new(*dbmysql.NotificationRepository)),
)

var realtimeSet = wire.NewSet(
	ProvideHub,
	ProvideTracker,
	ProvideTypingCoordinator,
	gateway.NewRouter,
	gateway.NewWebSocketServer,
	gateway.NewStreamServer,
	wire.Bind(new(gateway.ConversationAuthorizer), new(service.ConversationService)),
	wire.Bind(new(gateway.GroupDirectory), new(studygroup.Service)),
	wire.Bind(new(gateway.TypingCoordinator), new(*typing.Coordinator)),
)

var domainSet = wire.NewSet(
	repository.NewChatRepository,
	repository.NewUserDirectory,
	service.NewConversationService,
	handler.NewChatHandler,
	studygroup.NewRepository,
	studygroup.NewService,
	studygroup.NewHandler,
	presence.NewHandler,
	ProvideNotificationService,
	notif.NewNotificationHandler,
	wire.Bind(new(service.Fanout), new(*gateway.Hub)),
	wire.Bind(new(service.PresenceReader), new(*presence.Tracker)),
	wire.Bind(new(service.MessageNotifier), new(*notif.NotificationService)),
	wire.Bind(new(studygroup.Fanout), new(*gateway.Hub)),
	wire.Bind(new(studygroup.DeletionNotifier), new(*notif.NotificationService)),
)

func ProvideLogger(cfg *config.Config) *slog.Logger {
	return common.NewLogger(cfg.Logging)
}

func ProvideDatabase(cfg *config.Config, logger *slog.Logger) (*gorm.DB, func(), error) {
	db, err := dbmysql.NewMySQL(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return db, cleanup, nil
}

// ProvideLastSeenStore uses MongoDB when enabled and process memory otherwise.
func ProvideLastSeenStore(cfg *config.Config, logger *slog.Logger) (presence.LastSeenStore, func(), error) {
	if !cfg.MongoDB.Enabled {
		logger.Info("mongodb disabled, last-seen kept in memory")
		return presence.NewMemoryStore(), func() {}, nil
	}
	mc, err := dbmongo.NewMongoConnection(cfg)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mc.Close(ctx)
	}
	return dbmongo.NewPresenceStore(mc, cfg.MongoDB.PresenceCollection), cleanup, nil
}

func ProvideTokenVerifier(cfg *config.Config) common.TokenVerifier {
	return common.NewJWTManager(cfg)
}

func ProvideHub(cfg *config.Config, logger *slog.Logger) (*gateway.Hub, func()) {
	hub := gateway.NewHub(cfg, logger)
	return hub, hub.Shutdown
}

// ProvideTracker registers the tracker for connection events on the hub.
func ProvideTracker(hub *gateway.Hub, rooms repository.ChatRepository, store presence.LastSeenStore, logger *slog.Logger) *presence.Tracker {
	tracker := presence.NewTracker(hub, rooms, store, logger)
	hub.AddListener(tracker)
	return tracker
}

func ProvideTypingCoordinator(cfg *config.Config, hub *gateway.Hub, logger *slog.Logger) (*typing.Coordinator, func()) {
	coord := typing.NewCoordinator(hub, cfg.Chat.TypingTimeout, logger)
	return coord, coord.Shutdown
}

// ProvideNotificationService always stores and logs; Kafka is added when brokers are configured.
func ProvideNotificationService(cfg *config.Config, repo notif.NotificationStore, logger *slog.Logger) (*notif.NotificationService, func(), error) {
	observers := []common.Observer{
		notif.NewDatabaseNotificationObserver(repo),
		notif.NewLogNotificationObserver(logger),
	}

	var producer *notif.KafkaProducer
	if len(cfg.Kafka.Brokers) > 0 {
		p, err := notif.NewKafkaProducer(cfg)
		if err != nil {
			return nil, nil, err
		}
		producer = p
		observers = append(observers, notif.NewKafkaNotificationObserver(producer, cfg.Kafka.Topic))
	}

	svc := notif.NewNotificationService(cfg, repo, logger, observers...)
	cleanup := func() {
		svc.Shutdown()
		if producer != nil {
			_ = producer.Close()
		}
	}
	return svc, cleanup, nil
}

// ProvideHTTPHandler mounts the REST facade under /api/v1 and the websocket at /ws.
func ProvideHTTPHandler(
	logger *slog.Logger,
	verifier common.TokenVerifier,
	ws *gateway.WebSocketServer,
	chat *handler.ChatHandler,
	groups *studygroup.Handler,
	presenceHandler *presence.Handler,
	notifications *notif.NotificationHandler,
) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		common.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	r.Handle("/ws", ws)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(common.RequestLogger(logger), common.HTTPAuth(verifier))
	chat.RegisterRoutes(api)
	groups.RegisterRoutes(api)
	presenceHandler.RegisterRoutes(api)
	notifications.RegisterRoutes(api)
	return r
}

func ProvideGRPCServer(logger *slog.Logger, verifier common.TokenVerifier, stream *gateway.StreamServer) *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainStreamInterceptor(
			common.LoggingStreamInterceptor(logger),
			common.StreamAuthInterceptor(verifier),
		),
	)
	gateway.RegisterGatewayServer(srv, stream)
	return srv
}
