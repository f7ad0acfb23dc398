package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/exams-tracker/internal/common"
)

const (
	IntakeServiceName     = "exams.v1.IntakeService"
	processDocumentMethod = "/" + IntakeServiceName + "/ProcessDocument"

	maxPathLength = 4096
)

// IntakeServer is the gRPC face of the intake service. Requests and replies
// are google.protobuf.Struct values so no generated stubs are needed.
type IntakeServer interface {
	ProcessDocument(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var intakeServiceDesc = grpc.ServiceDesc{
	ServiceName: IntakeServiceName,
	HandlerType: (*IntakeServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ProcessDocument", Handler: processDocumentHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "exams/v1/intake.proto",
}

func processDocumentHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IntakeServer).ProcessDocument(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: processDocumentMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(IntakeServer).ProcessDocument(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// GRPCConfig configures the gRPC surface.
type GRPCConfig struct {
	// APIKey is required in the x-api-key metadata of every intake call when set.
	APIKey string
	// ImportRoot is the only directory ProcessDocument may read from. Empty
	// disables path imports.
	ImportRoot string
}

var errImportsDisabled = errors.New("path imports are disabled")

// IntakeService serves ProcessDocument from a local path under the import root.
type IntakeService struct {
	intake Intake
	root   string
	logger *slog.Logger
}

func NewIntakeService(in Intake, importRoot string, logger *slog.Logger) *IntakeService {
	if logger == nil {
		logger = slog.Default()
	}
	return &IntakeService{intake: in, root: importRoot, logger: logger}
}

// ProcessDocument expects {path, media_type?, original_name?}. Relative paths
// are taken from the import root.
func (s *IntakeService) ProcessDocument(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	path := strings.TrimSpace(fields["path"].GetStringValue())
	mediaType := fields["media_type"].GetStringValue()
	name := fields["original_name"].GetStringValue()

	v := common.NewValidator().
		Field("path", path, common.Required, common.MaxLength(maxPathLength)).
		Field("media_type", mediaType, common.MaxLength(255)).
		Field("original_name", name, common.MaxLength(255))
	if err := common.ValidateAndReturnError(v); err != nil {
		s.logger.Error("invalid process request", "error", err)
		return nil, err
	}

	logger := common.LoggerFromContext(ctx, s.logger)
	resolved, err := resolveImportPath(s.root, path)
	if err != nil {
		logger.Warn("path import refused", "path", path, "error", err)
		if errors.Is(err, errImportsDisabled) {
			return nil, status.Error(codes.FailedPrecondition, errImportsDisabled.Error())
		}
		return nil, status.Error(codes.PermissionDenied, "path is outside the import root")
	}
	if name == "" {
		name = filepath.Base(resolved)
	}

	logger.Info("starting document processing", "path", resolved)
	out, err := s.intake.ProcessPath(ctx, resolved, mediaType, name)
	if err != nil {
		return nil, common.ToStatus(err)
	}

	b, err := json.Marshal(out)
	if err != nil {
		return nil, common.InternalErrorf("encode result: %v", err)
	}
	resp := &structpb.Struct{}
	if err := protojson.Unmarshal(b, resp); err != nil {
		return nil, common.InternalErrorf("encode result: %v", err)
	}
	return resp, nil
}

// resolveImportPath maps p onto root and rejects anything that leaves it,
// symlinks included. A missing file under root is returned as is so the
// intake service reports it.
func resolveImportPath(root, p string) (string, error) {
	if strings.TrimSpace(root) == "" {
		return "", errImportsDisabled
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	p = filepath.Clean(p)
	if !within(root, p) {
		return "", errors.New("outside import root")
	}

	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", err
	}
	realPath, err := filepath.EvalSymlinks(p)
	if err != nil {
		return p, nil
	}
	if !within(realRoot, realPath) {
		return "", errors.New("link leaves import root")
	}
	return realPath, nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// unaryAuth requires the API key on every call except health checks.
func unaryAuth(key string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if key == "" || strings.HasPrefix(info.FullMethod, "/"+healthpb.Health_ServiceDesc.ServiceName+"/") {
			return handler(ctx, req)
		}
		got := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if v := md.Get(apiKeyHeader); len(v) > 0 {
				got = v[0]
			}
		}
		if !validAPIKey(got, key) {
			return nil, common.ToStatus(common.ErrUnauthorized)
		}
		return handler(ctx, req)
	}
}

// unaryLogging attaches a request ID and logger to each call and logs its outcome.
func unaryLogging(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		id := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if v := md.Get(strings.ToLower(requestIDHeader)); len(v) > 0 {
				id = v[0]
			}
		}
		if id == "" {
			id = uuid.NewString()
		}
		ctx = common.WithLogger(common.WithRequestID(ctx, id), logger.With("request_id", id))

		start := time.Now()
		resp, err := handler(ctx, req)
		common.LoggerFromContext(ctx, logger).Info("grpc request",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return resp, err
	}
}

// NewGRPCServer registers health, reflection and the intake service.
func NewGRPCServer(in Intake, cfg GRPCConfig, logger *slog.Logger) (*grpc.Server, *health.Server) {
	if logger == nil {
		logger = slog.Default()
	}
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(unaryLogging(logger), unaryAuth(cfg.APIKey)))

	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(IntakeServiceName, healthpb.HealthCheckResponse_SERVING)

	grpcServer.RegisterService(&intakeServiceDesc, NewIntakeService(in, cfg.ImportRoot, logger))
	reflection.Register(grpcServer)
	return grpcServer, hs
}
