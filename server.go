package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/wricardo/evacuation-drill/api"
	"github.com/wricardo/evacuation-drill/drill/codec"
	"github.com/wricardo/evacuation-drill/drill/config"
	"github.com/wricardo/evacuation-drill/drill/engine"
	"github.com/wricardo/evacuation-drill/drill/handler"
	"github.com/wricardo/evacuation-drill/drill/session"
	"github.com/wricardo/evacuation-drill/transport/mcp"
	"github.com/wricardo/evacuation-drill/transport/tcp"
	"github.com/wricardo/evacuation-drill/transport/websocket"
	"go.uber.org/zap"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"
	"golang.org/x/sync/errgroup"
)

// drillServer holds everything built from one configuration. The room is
// created once here and shared by every connection for the life of the
// process.
type drillServer struct {
	cfg      *config.DrillConfig
	logger   *zap.SugaredLogger
	room     *engine.Room
	sessions *session.Manager
	hub      *websocket.Hub
	tcp      *tcp.Server

	monitor    *http.Server
	monitorLn  net.Listener
	monitorURL string
}

// startDrill builds the room and binds both listeners. Nothing is served
// until run is called. An empty monitorAddr disables the monitor.
func startDrill(cfg *config.DrillConfig, manager *config.Manager, monitorAddr string, logger *zap.SugaredLogger) (*drillServer, error) {
	room, err := engine.NewRoom(cfg.Room(), engine.NewDoorMover(cfg.Width, cfg.Height, cfg.Door))
	if err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}

	d := &drillServer{
		cfg:      cfg,
		logger:   logger,
		room:     room,
		sessions: session.NewManager(),
	}
	d.hub = websocket.NewHub(room, logger.Named("hub"))

	h, err := handler.New(room, codec.Format(cfg.Codec), logger.Named("drill"),
		handler.WithRegistry(d.sessions),
		handler.WithPublisher(d.hub),
	)
	if err != nil {
		return nil, err
	}

	d.tcp, err = tcp.Listen(cfg.Addr(), h, logger.Named("tcp"))
	if err != nil {
		return nil, err
	}

	if monitorAddr == "" {
		logger.Infow("Monitor disabled")
		return d, nil
	}

	d.monitorLn, err = net.Listen("tcp", monitorAddr)
	if err != nil {
		d.tcp.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", monitorAddr, err)
	}
	d.monitorURL = localURL(d.monitorLn.Addr())

	opts := []api.Option{api.WithHub(d.hub)}
	if manager != nil {
		opts = append(opts, api.WithConfigs(manager))
	}
	apiServer := api.NewServer(room, d.sessions, cfg, logger.Named("api"), opts...)
	mcpClient := mcp.NewClient(d.monitorURL)

	d.monitor = &http.Server{
		Handler:      newMonitorHandler(apiServer, mcpClient),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return d, nil
}

// run serves until ctx is done or one of the servers fails
func (d *drillServer) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		d.hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		return d.tcp.Serve(gctx)
	})

	if d.monitor != nil {
		g.Go(func() error {
			d.logger.Infow("Monitor listening", "addr", d.monitorLn.Addr().String())
			d.logger.Infow("REST API: " + d.monitorURL + "/api/room")
			d.logger.Infow("WebSocket: " + wsURL(d.monitorURL) + "/ws?session=<session_id>")
			d.logger.Infow("MCP endpoint: " + d.monitorURL + "/mcp")

			if err := d.monitor.Serve(d.monitorLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("monitor failed: %w", err)
			}
			return nil
		})

		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := d.monitor.Shutdown(shutdownCtx); err != nil {
				d.logger.Warnw("Monitor shutdown error", "error", err)
			}
			return nil
		})
	}

	return g.Wait()
}

// serveNgrok exposes the monitor through an ngrok tunnel until ctx is done
func (d *drillServer) serveNgrok(ctx context.Context, authToken, domain string) {
	if authToken == "" {
		d.logger.Warnw("Ngrok enabled but no auth token provided (use --ngrok-auth, NGROK_AUTHTOKEN, or NGROK_AUTH_TOKEN env var)")
		return
	}

	d.logger.Infow("Starting ngrok tunnel")

	var tunnel ngrokConfig.Tunnel
	if domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(domain))
		d.logger.Infow("Using custom ngrok domain", "domain", domain)
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(authToken))
	if err != nil {
		d.logger.Warnw("Failed to start ngrok tunnel", "error", err)
		return
	}
	defer func() {
		if err := tun.Close(); err != nil {
			d.logger.Debugw("Failed to close ngrok tunnel", "error", err)
		}
	}()

	ngrokURL := tun.URL()
	d.logger.Infow("Ngrok tunnel established", "url", ngrokURL,
		"api", ngrokURL+"/api/room", "mcp", ngrokURL+"/mcp")

	go func() {
		<-ctx.Done()
		tun.Close()
	}()

	if err := http.Serve(tun, d.monitor.Handler); err != nil && !errors.Is(err, http.ErrServerClosed) && ctx.Err() == nil {
		d.logger.Warnw("Ngrok server error", "error", err)
	}
	d.logger.Infow("Ngrok tunnel closed")
}

// newMonitorHandler mounts the REST API at / and the MCP JSON-RPC endpoint at /mcp
func newMonitorHandler(apiServer http.Handler, mcpClient *mcp.Client) http.Handler {
	router := http.NewServeMux()
	router.Handle("/", apiServer)

	router.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := mcpClient.GetMCPServer().HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Write(responseData)
	})

	return router
}

// localURL turns a listener address into a URL reachable from this host
func localURL(addr net.Addr) string {
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return "http://" + addr.String()
	}
	host := tcpAddr.IP.String()
	if tcpAddr.IP == nil || tcpAddr.IP.IsUnspecified() {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, fmt.Sprintf("%d", tcpAddr.Port))
}

func wsURL(httpURL string) string {
	return "ws" + httpURL[len("http"):]
}
