package handler

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/library-circulation/internal/core/domain"
	"github.com/rl1809/library-circulation/internal/core/service"
)

const (
	CirculationServiceName = "library.v1.Circulation"

	issueMethod   = "/" + CirculationServiceName + "/Issue"
	returnMethod  = "/" + CirculationServiceName + "/Return"
	historyMethod = "/" + CirculationServiceName + "/History"

	healthServicePrefix = "/grpc.health.v1.Health/"
)

type IssueRequest struct {
	RequestID string `json:"requestId,omitempty"`
	MemberID  int64  `json:"memberId"`
	BookID    int64  `json:"bookId"`
	DueAt     string `json:"dueAt,omitempty"`
}

// IssueReply echoes the request's dueAt unchanged.
type IssueReply struct {
	ID       int64     `json:"id"`
	MemberID int64     `json:"memberId"`
	BookID   int64     `json:"bookId"`
	IssuedAt time.Time `json:"issuedAt"`
	DueAt    string    `json:"dueAt,omitempty"`
}

type ReturnRequest struct {
	IssueID int64 `json:"issueId"`
}

type ReturnReply struct {
	ReturnedAt time.Time `json:"returnedAt"`
}

type HistoryRequest struct {
	MemberID int64 `json:"memberId"`
}

type HistoryReply struct {
	Entries []historyEntryJSON `json:"entries"`
}

// CirculationServer is the server API of library.v1.Circulation.
type CirculationServer interface {
	Issue(context.Context, *IssueRequest) (*IssueReply, error)
	Return(context.Context, *ReturnRequest) (*ReturnReply, error)
	History(context.Context, *HistoryRequest) (*HistoryReply, error)
}

var CirculationServiceDesc = grpc.ServiceDesc{
	ServiceName: CirculationServiceName,
	HandlerType: (*CirculationServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Issue", Handler: issueHandler},
		{MethodName: "Return", Handler: returnHandler},
		{MethodName: "History", Handler: historyHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func RegisterCirculationServer(s grpc.ServiceRegistrar, srv CirculationServer) {
	s.RegisterService(&CirculationServiceDesc, srv)
}

func issueHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(IssueRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CirculationServer).Issue(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: issueMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(CirculationServer).Issue(ctx, req.(*IssueRequest))
	})
}

func returnHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ReturnRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CirculationServer).Return(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: returnMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(CirculationServer).Return(ctx, req.(*ReturnRequest))
	})
}

func historyHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(HistoryRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CirculationServer).History(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: historyMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(CirculationServer).History(ctx, req.(*HistoryRequest))
	})
}

type GRPCHandler struct {
	circulation *service.CirculationService
	auth        *service.AuthService
	log         *zap.Logger
}

var _ CirculationServer = (*GRPCHandler)(nil)

func NewGRPCHandler(circulation *service.CirculationService, auth *service.AuthService, log *zap.Logger) *GRPCHandler {
	return &GRPCHandler{circulation: circulation, auth: auth, log: log}
}

func (h *GRPCHandler) Issue(ctx context.Context, req *IssueRequest) (*IssueReply, error) {
	dueAt, err := parseDueAt(req.DueAt)
	if err != nil {
		return nil, h.statusError(err)
	}

	issue, err := h.circulation.Issue(ctx, domain.IssueRequest{
		RequestID: req.RequestID,
		MemberID:  req.MemberID,
		BookID:    req.BookID,
		DueAt:     dueAt,
	})
	if err != nil {
		return nil, h.statusError(err)
	}

	return &IssueReply{
		ID:       issue.ID,
		MemberID: issue.MemberID,
		BookID:   issue.BookID,
		IssuedAt: issue.IssuedAt,
		DueAt:    req.DueAt,
	}, nil
}

func (h *GRPCHandler) Return(ctx context.Context, req *ReturnRequest) (*ReturnReply, error) {
	returnedAt, err := h.circulation.Return(ctx, req.IssueID)
	if err != nil {
		return nil, h.statusError(err)
	}
	return &ReturnReply{ReturnedAt: returnedAt}, nil
}

func (h *GRPCHandler) History(ctx context.Context, req *HistoryRequest) (*HistoryReply, error) {
	entries, err := h.circulation.History(ctx, req.MemberID)
	if err != nil {
		return nil, h.statusError(err)
	}
	return &HistoryReply{Entries: toHistoryJSON(entries)}, nil
}

func (h *GRPCHandler) statusError(err error) error {
	code := grpcCode(err)
	if code == codes.Internal {
		h.log.Error("rpc failed", zap.Error(err))
		return status.Error(codes.Internal, internalErrorMessage)
	}
	return status.Error(code, errorMessage(err))
}

// LogUnary logs one line per call.
func (h *GRPCHandler) LogUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	ctx, slot := withSessionSlot(ctx)
	resp, err := handler(ctx, req)
	h.log.Info("grpc request", append([]zap.Field{
		zap.String("method", info.FullMethod),
		zap.String("code", status.Code(err).String()),
		zap.Duration("duration", time.Since(start)),
	}, slot.fields()...)...)
	return resp, err
}

// AuthUnary requires "authorization: Bearer <session token>" metadata on
// every call except the health service.
func (h *GRPCHandler) AuthUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if strings.HasPrefix(info.FullMethod, healthServicePrefix) {
		return handler(ctx, req)
	}

	session, err := h.auth.Authenticate(ctx, bearerToken(ctx))
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, status.Error(codes.Unauthenticated, "Unauthorized")
		}
		h.log.Error("session lookup failed", zap.Error(err))
		return nil, status.Error(codes.Internal, internalErrorMessage)
	}
	return handler(withSession(ctx, session), req)
}

func bearerToken(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, v := range md.Get("authorization") {
		if token, ok := strings.CutPrefix(v, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return ""
}

// CirculationClient calls library.v1.Circulation with the JSON codec.
type CirculationClient struct {
	cc grpc.ClientConnInterface
}

func NewCirculationClient(cc grpc.ClientConnInterface) *CirculationClient {
	return &CirculationClient{cc: cc}
}

func (c *CirculationClient) Issue(ctx context.Context, in *IssueRequest, opts ...grpc.CallOption) (*IssueReply, error) {
	out := new(IssueReply)
	if err := c.cc.Invoke(ctx, issueMethod, in, out, c.callOptions(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CirculationClient) Return(ctx context.Context, in *ReturnRequest, opts ...grpc.CallOption) (*ReturnReply, error) {
	out := new(ReturnReply)
	if err := c.cc.Invoke(ctx, returnMethod, in, out, c.callOptions(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CirculationClient) History(ctx context.Context, in *HistoryRequest, opts ...grpc.CallOption) (*HistoryReply, error) {
	out := new(HistoryReply)
	if err := c.cc.Invoke(ctx, historyMethod, in, out, c.callOptions(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CirculationClient) callOptions(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(JSONCodecName)}, opts...)
}
