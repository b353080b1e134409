package model

import "sync"

// RequestHook can rewrite an outbound chat request before it is shaped and
// sent. Hooks see the request after any earlier hook has run.
type RequestHook func(req *ChatRequest)

// RequestHooks manages registered request hooks.
type RequestHooks struct {
	mu    sync.RWMutex
	hooks []RequestHook
}

// NewRequestHooks creates an empty hook registry.
func NewRequestHooks() *RequestHooks {
	return &RequestHooks{}
}

// Register adds a hook. Nil hooks are ignored.
func (rh *RequestHooks) Register(hook RequestHook) {
	if rh == nil || hook == nil {
		return
	}
	rh.mu.Lock()
	rh.hooks = append(rh.hooks, hook)
	rh.mu.Unlock()
}

// Apply runs every registered hook against the request in order.
func (rh *RequestHooks) Apply(req *ChatRequest) {
	if rh == nil || req == nil {
		return
	}
	rh.mu.RLock()
	hooks := append([]RequestHook{}, rh.hooks...)
	rh.mu.RUnlock()

	for _, hook := range hooks {
		if hook != nil {
			hook(req)
		}
	}
}

// NormalizeArabicContent normalizes Arabic text in user messages: harakat
// and tatweel are stripped and letter variants unified so the tokenizer
// sees consistent input. Non-Arabic messages pass through untouched.
func NormalizeArabicContent(req *ChatRequest) {
	for i := range req.Messages {
		msg := &req.Messages[i]
		if msg.Role != "user" {
			continue
		}
		switch content := msg.Content.(type) {
		case string:
			if ContainsArabic(content) {
				msg.Content = NormalizeArabic(content)
			}
		case []ContentPart:
			parts := append([]ContentPart(nil), content...)
			changed := false
			for j := range parts {
				if parts[j].Type == "text" && ContainsArabic(parts[j].Text) {
					parts[j].Text = NormalizeArabic(parts[j].Text)
					changed = true
				}
			}
			if changed {
				msg.Content = parts
			}
		}
	}
}
