package setup

import (
	"fmt"
	"net"

	"github.com/forumd-dev/forumd/internal/config"
	"github.com/forumd-dev/forumd/internal/domain"
	"github.com/forumd-dev/forumd/internal/handler"
	"github.com/forumd-dev/forumd/internal/logger"
	"github.com/forumd-dev/forumd/internal/server"
	"github.com/forumd-dev/forumd/internal/service"
	"github.com/forumd-dev/forumd/internal/storage/fs"
	"github.com/forumd-dev/forumd/internal/store"
	"github.com/forumd-dev/forumd/internal/transfer"
)

// streamChannel adapts the acceptor to the dispatcher's transfer interface.
type streamChannel struct {
	acceptor *transfer.Acceptor
}

func (c streamChannel) Begin() handler.TransferSession {
	return c.acceptor.Begin()
}

// Dependencies holds everything the server binary needs, fully wired.
type Dependencies struct {
	Store    *store.Store
	Server   *server.Server
	Acceptor *transfer.Acceptor
}

// Build binds the control and stream endpoints on cfg.Server.Port and wires
// storage, services, dispatcher and supervisor.
func Build(cfg *config.Config) (*Dependencies, error) {
	var persist store.Persister = store.NopPersister{}
	var bootstrap []domain.User
	if cfg.Storage.DataDir != "" {
		fsStore, err := fs.New(cfg.Storage.DataDir, cfg.Auth.CredentialsPath)
		if err != nil {
			return nil, err
		}
		users, err := fsStore.LoadUsers()
		if err != nil {
			return nil, fmt.Errorf("load credentials: %w", err)
		}
		persist = fsStore
		bootstrap = users
	}

	st := store.New(persist)
	st.Bootstrap(bootstrap)

	tokens := service.NewJwt(cfg.Auth.JwtKey, cfg.Auth.JwtTTL.Std())
	auth := service.NewAuth(st, tokens)
	forum := service.NewForum(st)

	bind := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	udpAddr, err := net.ResolveUDPAddr("udp", bind)
	if err != nil {
		return nil, fmt.Errorf("resolve control address: %w", err)
	}
	udpConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("bind control socket: %w", err)
	}
	tcpListener, err := net.Listen("tcp", bind)
	if err != nil {
		udpConn.Close()
		return nil, fmt.Errorf("bind stream endpoint: %w", err)
	}

	acceptor := transfer.NewAcceptor(tcpListener, cfg.Server.RequestTimeout.Std())
	h := handler.New(auth, forum, st.Recent, streamChannel{acceptor})
	srv := server.New(udpConn, h, cfg.Server.MaxWorkers)

	logger.Log.Info("forum server listening", "addr", bind, "users", len(bootstrap))

	return &Dependencies{Store: st, Server: srv, Acceptor: acceptor}, nil
}
