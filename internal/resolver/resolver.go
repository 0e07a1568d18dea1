package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mugisham37/product-management-interview-project/internal/logging"
	"github.com/mugisham37/product-management-interview-project/internal/models"
	"golang.org/x/sync/errgroup"
)

type Strategy string

const (
	ServerWins Strategy = "server-wins"
	ClientWins Strategy = "client-wins"
	Merge      Strategy = "merge"
	PromptUser Strategy = "prompt-user"
)

func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case ServerWins, ClientWins, Merge, PromptUser:
		return st, nil
	default:
		return "", fmt.Errorf("unknown resolution strategy %q", s)
	}
}

// Writer persists a client's business fields unconditionally.
type Writer interface {
	UpdateProduct(ctx context.Context, id string, fields models.ProductFields) (*models.Product, error)
}

// Prompter asks an interactive party how to settle one conflicted record. It
// returns ServerWins, ClientWins or Merge. server is nil when the record was
// deleted server-side.
type Prompter interface {
	Decide(ctx context.Context, client models.Product, server *models.Product, conflicts []models.ConflictDescriptor) (Strategy, error)
}

type PrompterFunc func(ctx context.Context, client models.Product, server *models.Product, conflicts []models.ConflictDescriptor) (Strategy, error)

func (f PrompterFunc) Decide(ctx context.Context, client models.Product, server *models.Product, conflicts []models.ConflictDescriptor) (Strategy, error) {
	return f(ctx, client, server, conflicts)
}

type Failure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// Resolution is the reconciled view of the records. Strategy is the strategy
// actually applied, which differs from the requested one when prompt-user
// fell back to server-wins.
type Resolution struct {
	Strategy Strategy         `json:"strategy"`
	Records  []models.Product `json:"records"`
	Failures []Failure        `json:"failures"`
	Warnings []string         `json:"warnings"`
}

type Resolver struct {
	writer      Writer
	prompter    Prompter
	parallelism int
	log         *logging.Logger
}

type Option func(*Resolver)

func WithPrompter(p Prompter) Option {
	return func(r *Resolver) { r.prompter = p }
}

// WithParallelism bounds the number of concurrent client-wins writes.
func WithParallelism(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.parallelism = n
		}
	}
}

func New(writer Writer, log *logging.Logger, opts ...Option) *Resolver {
	if log == nil {
		log = logging.Nop()
	}
	r := &Resolver{writer: writer, parallelism: 4, log: log}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve reconciles client and server copies of the records named in
// conflicts. Only client-wins (and client-wins decisions made through a
// prompter) write to the store.
func (r *Resolver) Resolve(ctx context.Context, conflicts []models.ConflictDescriptor, clientRecords, serverRecords []models.Product, strategy Strategy) (*Resolution, error) {
	res := &Resolution{Strategy: strategy, Failures: []Failure{}, Warnings: []string{}}
	switch strategy {
	case ServerWins:
		res.Records = serverWins(serverRecords)
	case ClientWins:
		res.Records = r.clientWins(ctx, conflictedIDs(conflicts), clientRecords, serverRecords, res)
	case Merge:
		res.Records = merge(clientRecords, serverRecords)
	case PromptUser:
		if r.prompter == nil {
			msg := "prompt-user requested but no prompter is wired; falling back to server-wins"
			r.log.Warnf("%s", msg)
			res.Strategy = ServerWins
			res.Warnings = append(res.Warnings, msg)
			res.Records = serverWins(serverRecords)
			break
		}
		res.Records = r.promptUser(ctx, conflicts, clientRecords, serverRecords, res)
	default:
		return nil, fmt.Errorf("unknown resolution strategy %q", strategy)
	}
	return res, nil
}

func serverWins(serverRecords []models.Product) []models.Product {
	out := make([]models.Product, len(serverRecords))
	copy(out, serverRecords)
	return out
}

// clientWins writes every conflicted client record. A failed write falls back
// to the server copy and does not stop the others.
func (r *Resolver) clientWins(ctx context.Context, conflicted map[string]bool, clientRecords, serverRecords []models.Product, res *Resolution) []models.Product {
	servers := byID(serverRecords)
	results := make([]*models.Product, len(clientRecords))
	errs := make([]error, len(clientRecords))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)
	for i, c := range clientRecords {
		if !conflicted[c.ID] {
			cp := c
			results[i] = &cp
			continue
		}
		i, c := i, c
		g.Go(func() error {
			written, err := r.writer.UpdateProduct(gctx, c.ID, models.FieldsOf(c))
			if err != nil {
				errs[i] = err
				return nil
			}
			results[i] = written
			return nil
		})
	}
	_ = g.Wait()

	out := make([]models.Product, 0, len(clientRecords))
	for i, c := range clientRecords {
		if errs[i] != nil {
			r.log.Warnf("client-wins write for %s failed: %v", c.ID, errs[i])
			res.Failures = append(res.Failures, Failure{ID: c.ID, Error: errs[i].Error()})
			if s, ok := servers[c.ID]; ok {
				out = append(out, s)
			}
			continue
		}
		out = append(out, *results[i])
	}
	return out
}

// merge keeps, for every id, the copy with the newer lastModified. Ties go to
// the server. Client order comes first, then server-only records.
func merge(clientRecords, serverRecords []models.Product) []models.Product {
	servers := byID(serverRecords)
	seen := make(map[string]bool, len(clientRecords))
	out := make([]models.Product, 0, len(clientRecords)+len(serverRecords))
	for _, c := range clientRecords {
		seen[c.ID] = true
		s, ok := servers[c.ID]
		if !ok {
			out = append(out, c)
			continue
		}
		out = append(out, newer(c, s))
	}
	for _, s := range serverRecords {
		if !seen[s.ID] {
			out = append(out, s)
		}
	}
	return out
}

func newer(client, server models.Product) models.Product {
	if client.UpdatedAt.After(server.UpdatedAt) {
		return client
	}
	return server
}

// promptUser asks the prompter about each conflicted client record and
// applies its answer. A failing prompt keeps the server copy.
func (r *Resolver) promptUser(ctx context.Context, conflicts []models.ConflictDescriptor, clientRecords, serverRecords []models.Product, res *Resolution) []models.Product {
	servers := byID(serverRecords)
	perRecord := make(map[string][]models.ConflictDescriptor)
	for _, c := range conflicts {
		perRecord[c.RecordID] = append(perRecord[c.RecordID], c)
	}

	out := make([]models.Product, 0, len(clientRecords))
	for _, c := range clientRecords {
		descriptors, conflicted := perRecord[c.ID]
		if !conflicted {
			out = append(out, c)
			continue
		}
		var server *models.Product
		if s, ok := servers[c.ID]; ok {
			server = &s
		}
		decision, err := r.prompter.Decide(ctx, c, server, descriptors)
		if err != nil {
			r.log.Warnf("prompt for %s failed: %v", c.ID, err)
			res.Failures = append(res.Failures, Failure{ID: c.ID, Error: err.Error()})
			if server != nil {
				out = append(out, *server)
			}
			continue
		}
		switch decision {
		case ClientWins:
			written, err := r.writer.UpdateProduct(ctx, c.ID, models.FieldsOf(c))
			if err != nil {
				r.log.Warnf("client-wins write for %s failed: %v", c.ID, err)
				res.Failures = append(res.Failures, Failure{ID: c.ID, Error: err.Error()})
				if server != nil {
					out = append(out, *server)
				}
				continue
			}
			out = append(out, *written)
		case Merge:
			if server == nil {
				out = append(out, c)
				continue
			}
			out = append(out, newer(c, *server))
		default:
			if decision != ServerWins {
				res.Warnings = append(res.Warnings, fmt.Sprintf("prompt for %s answered %q; keeping server copy", c.ID, decision))
			}
			if server != nil {
				out = append(out, *server)
			}
		}
	}
	return out
}

func conflictedIDs(conflicts []models.ConflictDescriptor) map[string]bool {
	ids := make(map[string]bool, len(conflicts))
	for _, c := range conflicts {
		ids[c.RecordID] = true
	}
	return ids
}

func byID(records []models.Product) map[string]models.Product {
	m := make(map[string]models.Product, len(records))
	for _, p := range records {
		m[p.ID] = p
	}
	return m
}
