package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/mugisham37/product-management-interview-project/internal/models"
	"github.com/mugisham37/product-management-interview-project/internal/resolver"
)

// terminalPrompter asks on a terminal how to settle each conflicted record.
type terminalPrompter struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

func newTerminalPrompter(in io.Reader, out io.Writer) *terminalPrompter {
	return &terminalPrompter{in: bufio.NewReader(in), out: out}
}

func (p *terminalPrompter) Decide(ctx context.Context, client models.Product, server *models.Product, conflicts []models.ConflictDescriptor) (resolver.Strategy, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "\nconflict on product %s (%s)\n", client.ID, client.Name)
	if server == nil {
		fmt.Fprintln(p.out, "  deleted on the server")
	}
	for _, c := range conflicts {
		fmt.Fprintf(p.out, "  %-14s local=%v server=%v\n", c.Field, c.ClientValue, c.ServerValue)
	}
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		fmt.Fprint(p.out, "keep [s]erver, [c]lient or [m]erge by newest? ")
		line, err := p.in.ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("read answer: %w", err)
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "s", "server":
			return resolver.ServerWins, nil
		case "c", "client":
			return resolver.ClientWins, nil
		case "m", "merge":
			return resolver.Merge, nil
		}
		if err != nil {
			return "", fmt.Errorf("read answer: %w", err)
		}
	}
}
