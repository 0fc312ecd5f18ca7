package cli

import (
	"fmt"
	"log/slog"

	"github.com/roach88/bulkstore/internal/batch"
	"github.com/roach88/bulkstore/internal/config"
	"github.com/roach88/bulkstore/internal/domain"
	"github.com/roach88/bulkstore/internal/executor"
	"github.com/roach88/bulkstore/internal/governor"
	"github.com/roach88/bulkstore/internal/repository"
	"github.com/roach88/bulkstore/internal/schema"
	"github.com/roach88/bulkstore/internal/store"
	"github.com/roach88/bulkstore/internal/store/memstore"
	"github.com/roach88/bulkstore/internal/store/sqlstore"
)

// session is one unit of work: a store, one governor, and the executor,
// writer and repositories that share it.
type session struct {
	cfg     config.Config
	catalog *schema.Catalog
	store   store.Store
	gov     *governor.Governor
	exec    *executor.Executor
	writer  *batch.Writer

	accounts      *repository.Repository[*domain.Account]
	contacts      *repository.Repository[*domain.Contact]
	opportunities *repository.Repository[*domain.Opportunity]

	closeStore func() error
}

func loadCatalog(dir string) (*schema.Catalog, error) {
	if dir == "" {
		return schema.Default()
	}
	return schema.Load(dir)
}

// openSession wires a unit of work from the resolved configuration.
func openSession(opts *RootOptions, govOpts ...governor.Option) (*session, error) {
	cfg := opts.Config
	catalog, err := loadCatalog(opts.CatalogDir)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load catalog", err)
	}

	s := &session{cfg: cfg, catalog: catalog, closeStore: func() error { return nil }}
	switch cfg.Store.Driver {
	case config.DriverMemory:
		s.store = memstore.New(catalog)
	default:
		slog.Debug("opening store", "driver", cfg.Store.Driver, "dsn", cfg.Store.DSN)
		st, err := sqlstore.Open(cfg.Store.Driver, cfg.Store.DSN, catalog)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open store", err)
		}
		s.store = st
		s.closeStore = st.Close
	}

	logger := slog.Default()
	s.gov = governor.New(cfg.GovernorLimits(), append([]governor.Option{governor.WithLogger(logger)}, govOpts...)...)
	s.exec = executor.New(s.store, s.gov, executor.WithLogger(logger), executor.WithCatalog(catalog))
	s.writer = batch.NewWriter(s.store, s.gov, batch.WithLogger(logger))

	repoOpts := []repository.Option{
		repository.WithLogger(logger),
		repository.WithCache(cfg.Repository.CacheSize),
	}
	if s.accounts, err = repository.NewAccounts(s.exec, s.writer, repoOpts...); err != nil {
		return nil, s.fail(err)
	}
	if s.contacts, err = repository.NewContacts(s.exec, s.writer, repoOpts...); err != nil {
		return nil, s.fail(err)
	}
	if s.opportunities, err = repository.NewOpportunities(s.exec, s.writer, repoOpts...); err != nil {
		return nil, s.fail(err)
	}
	return s, nil
}

func (s *session) fail(err error) error {
	if closeErr := s.closeStore(); closeErr != nil {
		slog.Error("error closing store", "error", closeErr)
	}
	return WrapExitError(ExitCommandError, "failed to build repositories", err)
}

// Close discards unflushed writes and closes the store.
func (s *session) Close() {
	if n := s.writer.Pending(); n > 0 {
		slog.Warn("discarding unflushed writes", "records", n)
		s.writer.Discard()
	}
	if err := s.closeStore(); err != nil {
		slog.Error("error closing store", "error", err)
	}
}

// usageLine renders the governor counters for text output.
func usageLine(u governor.Usage) string {
	return fmt.Sprintf("quota: %d/%d queries, %d/%d write batches", u.QueriesIssued, u.QueryCeiling, u.WriteBatchesIssued, u.WriteCeiling)
}
