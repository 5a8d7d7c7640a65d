package presenter

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/omni/bridge-relayer/db"
	"github.com/omni/bridge-relayer/entity"
	"github.com/omni/bridge-relayer/logging"
	"github.com/omni/bridge-relayer/presenter/http/middleware"
	"github.com/omni/bridge-relayer/presenter/http/render"
	"github.com/omni/bridge-relayer/relay"
	"github.com/omni/bridge-relayer/repository"
)

const (
	throttleLimit  = 5
	requestTimeout = 30 * time.Second
)

type Presenter struct {
	logger logging.Logger
	repo   *repository.Repo
	chains []*relay.Chain
	health relay.HealthChecker
	root   chi.Router
}

func NewPresenter(logger logging.Logger, repo *repository.Repo, chains []*relay.Chain, health relay.HealthChecker) *Presenter {
	p := &Presenter{
		logger: logger,
		repo:   repo,
		chains: chains,
		health: health,
		root:   chi.NewMux(),
	}
	p.routes()
	return p
}

func (p *Presenter) routes() {
	p.root.Use(chimiddleware.Throttle(throttleLimit))
	p.root.Use(chimiddleware.RequestID)
	p.root.Use(middleware.NewLoggerMiddleware(p.logger))
	p.root.Use(middleware.Recoverer)
	p.root.Use(chimiddleware.Timeout(requestTimeout))

	p.root.With(middleware.GetRecordIDMiddleware).Get("/records/{id}", p.GetRecord)
	p.root.With(middleware.GetExternalIDMiddleware).Get("/records/external/{externalId}", p.SearchByExternalID)
	p.root.With(middleware.GetParticipantMiddleware, middleware.GetPaginationMiddleware).
		Get("/participants/{address}/records", p.SearchByParticipant)
	p.root.Get("/chains", p.GetChains)
	p.root.Get("/stats", p.GetStats)
}

func (p *Presenter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.root.ServeHTTP(w, r)
}

func (p *Presenter) Serve(addr string) error {
	p.logger.WithField("addr", addr).Info("starting presenter service")
	return http.ListenAndServe(addr, p)
}

func (p *Presenter) GetRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := middleware.RecordID(ctx)

	rec, err := p.repo.GetByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		render.Status(w, r, http.StatusNotFound, fmt.Errorf("record with id %s not found", id))
		return
	}
	if err != nil {
		render.Error(w, r, fmt.Errorf("failed to get record: %w", err))
		return
	}
	render.JSON(w, r, http.StatusOK, recordToInfo(rec))
}

func (p *Presenter) SearchByExternalID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	externalID := middleware.ExternalID(ctx)

	records, err := p.repo.FindByExternalID(ctx, externalID)
	if err != nil {
		render.Error(w, r, fmt.Errorf("failed to find records by external id: %w", err))
		return
	}
	if len(records) == 0 {
		render.Status(w, r, http.StatusNotFound, fmt.Errorf("records with external id %s not found", externalID))
		return
	}
	render.JSON(w, r, http.StatusOK, &RecordsResult{Records: recordsToInfo(records)})
}

// SearchByParticipant merges records of all kinds, newest first.
func (p *Presenter) SearchByParticipant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	addr := middleware.Participant(ctx)
	page := middleware.GetPagination(ctx)

	var records []entity.Record
	for _, repo := range p.repo.Records() {
		res, err := repo.FindByParticipant(ctx, addr, page.Limit+page.Offset, 0)
		if err != nil {
			render.Error(w, r, fmt.Errorf("failed to find %s records by participant: %w", repo.Kind(), err))
			return
		}
		records = append(records, res...)
	}
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i].Header().CreatedAt, records[j].Header().CreatedAt
		if a == nil || b == nil {
			return a != nil
		}
		return a.After(*b)
	})

	if page.Offset >= uint(len(records)) {
		records = nil
	} else {
		records = records[page.Offset:]
	}
	if uint(len(records)) > page.Limit {
		records = records[:page.Limit]
	}
	render.JSON(w, r, http.StatusOK, &RecordsResult{
		Records: recordsToInfo(records),
		Limit:   page.Limit,
		Offset:  page.Offset,
	})
}

func (p *Presenter) GetChains(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	states, err := p.repo.ChainStates.FindAll(ctx)
	if err != nil {
		render.Error(w, r, fmt.Errorf("failed to get chain states: %w", err))
		return
	}
	cursors := make(map[string]uint, len(states))
	for _, state := range states {
		cursors[state.ChainID] = state.LastProcessedBlock
	}

	res := make([]*ChainInfo, 0, len(p.chains))
	for _, chain := range p.chains {
		res = append(res, &ChainInfo{
			Name:                  chain.Name,
			ChainID:               chain.ChainID,
			Healthy:               p.health.IsHealthy(chain.ChainID),
			RequiredConfirmations: chain.BlockConfirmations,
			LastProcessedBlock:    cursors[chain.ChainID],
		})
	}
	render.JSON(w, r, http.StatusOK, res)
}

func (p *Presenter) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	res := &StatsResult{
		QueueDepth: make(map[string]uint),
		ByState:    make(map[entity.State]uint),
	}
	for _, repo := range p.repo.Records() {
		counts, err := repo.CountByState(ctx)
		if err != nil {
			render.Error(w, r, fmt.Errorf("failed to count %s records: %w", repo.Kind(), err))
			return
		}
		for _, c := range counts {
			res.Ingested += c.Count
			res.ByState[c.State] += c.Count
			switch c.State {
			case entity.StateExecuted:
				res.Executed += c.Count
			case entity.StateFailed:
				res.Failed += c.Count
			default:
				res.QueueDepth[c.DestChainID] += c.Count
			}
		}
	}
	render.JSON(w, r, http.StatusOK, res)
}
