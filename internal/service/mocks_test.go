package service

import (
	"context"
	"sync"

	"deskbridge/internal/models"
	"deskbridge/pkg/chat"
	"deskbridge/pkg/helpdesk"
)

// Mock helpdesk adapter
type mockHelpdeskClient struct {
	mu sync.Mutex

	sendTextResp *models.DeliveryResult
	sendTextErr  error
	// sendTextErrs overrides sendTextErr per call when non-empty, letting
	// tests script a failure followed by a recovery.
	sendTextErrs []error
	sendTextN    int

	sendAttResp   *models.DeliveryResult
	sendAttErr    error
	sendAttErrFor map[string]error // keyed by attachment file name
	sendAttN      int

	agentInfo *models.AgentInfo
	agentErr  error
	agentN    int

	ackErr error
	ackN   int

	createResp *helpdesk.ConversationRef
	createErr  error
	createN    int
}

func (m *mockHelpdeskClient) SendText(ctx context.Context, conv helpdesk.ConversationRef, text string) (*models.DeliveryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.sendTextN
	m.sendTextN++
	if idx < len(m.sendTextErrs) {
		if err := m.sendTextErrs[idx]; err != nil {
			return nil, err
		}
		return m.sendTextResp, nil
	}
	if m.sendTextErr != nil {
		return nil, m.sendTextErr
	}
	return m.sendTextResp, nil
}

func (m *mockHelpdeskClient) SendAttachment(ctx context.Context, conv helpdesk.ConversationRef, att *models.AttachmentRef) (*models.DeliveryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendAttN++
	if err, ok := m.sendAttErrFor[att.FileName]; ok {
		return nil, err
	}
	if m.sendAttErr != nil {
		return nil, m.sendAttErr
	}
	return m.sendAttResp, nil
}

func (m *mockHelpdeskClient) ResolveAgentInfo(ctx context.Context, agentID string) (*models.AgentInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agentN++
	return m.agentInfo, m.agentErr
}

func (m *mockHelpdeskClient) AcknowledgeInbound(ctx context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ackN++
	return m.ackErr
}

func (m *mockHelpdeskClient) CreateConversation(ctx context.Context, user models.EndUser, initialText string) (*helpdesk.ConversationRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createN++
	if m.createErr != nil {
		return nil, m.createErr
	}
	return m.createResp, nil
}

func (m *mockHelpdeskClient) calls() (text, att, create, ack int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sendTextN, m.sendAttN, m.createN, m.ackN
}

// Mock chat platform client
type mockChatClient struct {
	mu       sync.Mutex
	sendResp *models.DeliveryResult
	sendErr  error
	sendN    int
	lastMsg  *chat.OutboundMessage
	lastRef  chat.ConversationReference
}

func (m *mockChatClient) SendMessage(ctx context.Context, ref chat.ConversationReference, msg *chat.OutboundMessage) (*models.DeliveryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendN++
	m.lastMsg = msg
	m.lastRef = ref
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	return m.sendResp, nil
}

// Mock blob relay
type mockRelay struct {
	mu       sync.Mutex
	url      string
	err      error
	errFor   map[string]error // keyed by file name
	relayN   int
	maxInUse int
	inUse    int
}

func (m *mockRelay) RelayBytes(ctx context.Context, fileName, mimeType string, data []byte) (string, error) {
	return m.relay(fileName)
}

func (m *mockRelay) RelayURL(ctx context.Context, att *models.AttachmentRef) (string, error) {
	return m.relay(att.FileName)
}

func (m *mockRelay) relay(fileName string) (string, error) {
	m.mu.Lock()
	m.relayN++
	m.inUse++
	if m.inUse > m.maxInUse {
		m.maxInUse = m.inUse
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inUse--
		m.mu.Unlock()
	}()

	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.errFor[fileName]; ok {
		return "", err
	}
	if m.err != nil {
		return "", m.err
	}
	if m.url != "" {
		return m.url, nil
	}
	return "https://relay.example.com/blobs/" + fileName, nil
}

// Mock mapping store, backed by maps keyed on tenant+conversation ids.
type mockStore struct {
	mu        sync.Mutex
	byChat    map[string]*models.ConversationMapping
	byDesk    map[string]*models.ConversationMapping
	inactive  map[string]bool
	upsertErr error
	lookupErr error
}

func newMockStore() *mockStore {
	return &mockStore{
		byChat:   make(map[string]*models.ConversationMapping),
		byDesk:   make(map[string]*models.ConversationMapping),
		inactive: make(map[string]bool),
	}
}

func (s *mockStore) UpsertMapping(ctx context.Context, m *models.ConversationMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return s.upsertErr
	}
	cp := *m
	s.byChat[m.TenantID+"|"+m.ChatConvID] = &cp
	s.byDesk[m.TenantID+"|"+m.HelpdeskConvID] = &cp
	return nil
}

func (s *mockStore) GetMappingByChatID(ctx context.Context, tenantID, chatConvID string) (*models.ConversationMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	if m, ok := s.byChat[tenantID+"|"+chatConvID]; ok {
		cp := *m
		return &cp, nil
	}
	return nil, nil
}

func (s *mockStore) GetMappingByHelpdeskID(ctx context.Context, tenantID, helpdeskConvID string) (*models.ConversationMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	if m, ok := s.byDesk[tenantID+"|"+helpdeskConvID]; ok {
		cp := *m
		return &cp, nil
	}
	return nil, nil
}

func (s *mockStore) MarkResolved(ctx context.Context, tenantID, helpdeskConvID string, resolved bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.byDesk[tenantID+"|"+helpdeskConvID]; ok {
		m.Resolved = resolved
	}
	return nil
}

func (s *mockStore) MarkGreetingSent(ctx context.Context, tenantID, chatConvID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.byChat[tenantID+"|"+chatConvID]; ok {
		m.GreetingSent = true
	}
	return nil
}

func (s *mockStore) SetTenantActive(ctx context.Context, tenantID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inactive[tenantID] = !active
	return nil
}

func (s *mockStore) tenantDeactivated(tenantID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inactive[tenantID]
}

// Mock tenant resolver
type mockResolver struct {
	mu       sync.Mutex
	tenants  map[string]*models.TenantContext
	err      error
	resolveN int
}

func newMockResolver(tenants ...*models.TenantContext) *mockResolver {
	r := &mockResolver{tenants: make(map[string]*models.TenantContext)}
	for _, t := range tenants {
		r.tenants[t.TenantID] = t
	}
	return r
}

func (r *mockResolver) ResolveTenant(ctx context.Context, tenantID string) (*models.TenantContext, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolveN++
	if r.err != nil {
		return nil, r.err
	}
	return r.tenants[tenantID], nil
}

// Mock adapter provider that bypasses credential resolution.
type mockFactory struct {
	mu          sync.Mutex
	client      helpdesk.Client
	err         error
	invalidated []string
}

func (f *mockFactory) GetAdapter(ctx context.Context, tenantID string) (helpdesk.Client, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.client, nil
}

func (f *mockFactory) Invalidate(tenantID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, tenantID)
}
