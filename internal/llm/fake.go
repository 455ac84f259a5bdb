package llm

import (
	"context"
	"fmt"
	"sync"
)

// Fake is a scripted Client. Each call consumes the next queued reply.
type Fake struct {
	mu      sync.Mutex
	replies []FakeReply
	prompts []string
}

type FakeReply struct {
	Text string
	Err  error
}

func NewFake(replies ...FakeReply) *Fake {
	return &Fake{replies: replies}
}

func (f *Fake) Complete(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if len(f.replies) == 0 {
		return "", fmt.Errorf("fake llm: no scripted reply for call %d", len(f.prompts))
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	return reply.Text, reply.Err
}

func (f *Fake) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.prompts))
	copy(out, f.prompts)
	return out
}
