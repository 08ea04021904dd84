// Command esignd runs the esign HTTP surface and envelope-progression task
// workers in one process, sharing a single Postgres pool between them
// (spec.md §5: "one DB pool, one SMTP transport, one queue client").
package main

import (
	"context"
	"crypto"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/esignhq/esign/internal/cades"
	"github.com/esignhq/esign/internal/config"
	"github.com/esignhq/esign/internal/esignerr"
	"github.com/esignhq/esign/internal/filestore"
	"github.com/esignhq/esign/internal/hsm"
	"github.com/esignhq/esign/internal/httpapi"
	"github.com/esignhq/esign/internal/mailer"
	"github.com/esignhq/esign/internal/obslog"
	"github.com/esignhq/esign/internal/pdfwriter"
	"github.com/esignhq/esign/internal/signpipeline"
	"github.com/esignhq/esign/internal/store"
	"github.com/esignhq/esign/internal/tasks"
)

func main() {
	if err := run(); err != nil {
		log := obslog.NewSimple("esignd")
		log.Error(err, "esignd failed")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := obslog.New("esignd", cfg.LogPath, cfg.Production)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := store.Migrate(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	files, err := buildFileStore(ctx, &cfg.Storage)
	if err != nil {
		return fmt.Errorf("build file store: %w", err)
	}
	filesKey, err := base64.StdEncoding.DecodeString(cfg.Storage.FilesKey)
	if err != nil {
		return fmt.Errorf("decode storage.files_key: %w", err)
	}
	filesSigner := filestore.NewSigner(filesKey)

	mail := mailer.New(mailer.Config{
		Server: cfg.SMTP.Host,
		Port:   cfg.SMTP.Port,
		Auth:   smtpAuth(&cfg.SMTP),
		From:   cfg.SMTP.From,
	})

	signer, err := buildSigner(&cfg.Signing)
	if err != nil {
		return fmt.Errorf("build signer: %w", err)
	}
	pipeline := &signpipeline.Pipeline{Signer: signer}
	sigInfo := pdfwriter.SignatureInfo{
		Reason:   "Electronic signature",
		Location: cfg.ExternalURI,
	}

	taskDeps := &tasks.Deps{
		Store:    db,
		Files:    files,
		Pipeline: pipeline,
		Mail:     mail,
		SigInfo:  sigInfo,
		BaseURL:  cfg.ExternalURI,
	}

	riverClient, err := tasks.NewClient(db.Pool(), taskDeps)
	if err != nil {
		return fmt.Errorf("build task client: %w", err)
	}
	taskDeps.SetEnqueuer(&tasks.RiverEnqueuer{Client: riverClient})

	if err := riverClient.Start(ctx); err != nil {
		return fmt.Errorf("start task client: %w", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		_ = riverClient.Stop(stopCtx)
	}()

	auth, err := httpapi.NewAuthenticator(ctx, cfg.OIDC.IssuerURL, cfg.OIDC.ClientID)
	if err != nil {
		return fmt.Errorf("build authenticator: %w", err)
	}

	router := httpapi.NewRouter(&httpapi.Deps{
		Store:       db,
		Files:       files,
		FilesSigner: filesSigner,
		Renderer:    pipeline,
		Auth:        auth,
		Tasks:       &tasks.RiverEnqueuer{Client: riverClient},
		SigInfo:     sigInfo,
		NAT64Net:    cfg.NAT64Net,
		StaticDir:   "./static",
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

func buildFileStore(ctx context.Context, cfg *config.Storage) (filestore.Store, error) {
	if cfg.Bucket != "" {
		return filestore.NewS3Store(ctx, cfg.Bucket, cfg.Region, "")
	}
	return filestore.NewLocalStore(cfg.FilesDir)
}

func smtpAuth(cfg *config.SMTP) *mailer.Auth {
	if cfg.Username == "" {
		return nil
	}
	return &mailer.Auth{Username: cfg.Username, Password: cfg.Password}
}

// buildSigner constructs the CAdES signer backend configured by
// cfg.Backend (spec.md §4.E: "pkcs11" is the default HSM-backed path; the
// cloud KMS backends are REDESIGN FLAGS territory, not yet implemented —
// see DESIGN.md). A zero CertificatePath means no signing key is
// configured, matching signpipeline's "overlay-only" mode.
func buildSigner(cfg *config.Signing) (*signpipeline.Signer, error) {
	if cfg.CertificatePath == "" {
		return nil, nil
	}

	chain, err := loadCertificateChain(cfg.CertificatePath)
	if err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case "pkcs11", "":
		engine, err := hsm.Open(cfg.PKCS11ModulePath, cfg.PKCS11TokenLabel, cfg.PKCS11KeyLabel, cfg.PKCS11PIN, chain[0].PublicKey)
		if err != nil {
			return nil, esignerr.New(esignerr.HsmFailure, "main.buildSigner", err)
		}
		return &cades.Signer{
			Certificate:      chain[0],
			CertificateChain: chain[1:],
			Key:              engine,
			DigestAlgorithm:  crypto.SHA256,
			TSA:              buildTSA(cfg),
		}, nil
	default:
		return nil, fmt.Errorf("signing backend %q not implemented (see DESIGN.md REDESIGN FLAGS)", cfg.Backend)
	}
}

func buildTSA(cfg *config.Signing) *cades.TimestampClient {
	if cfg.TSAURL == "" {
		return nil
	}
	return &cades.TimestampClient{URL: cfg.TSAURL, Username: cfg.TSAUsername, Password: cfg.TSAPassword}
}

func loadCertificateChain(path string) ([]*x509.Certificate, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read certificate_path: %w", err)
	}

	var chain []*x509.Certificate
	rest := raw
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse certificate: %w", err)
		}
		chain = append(chain, cert)
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("no certificates found in %s", path)
	}
	return chain, nil
}
