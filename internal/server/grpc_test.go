package server

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/exams-tracker/internal/common"
)

const testKey = "s3cret"

func dialTestServer(t *testing.T, in Intake, cfg GRPCConfig) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv, _ := NewGRPCServer(in, cfg, nil)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func processDocument(t *testing.T, conn *grpc.ClientConn, key string, fields map[string]any) (*structpb.Struct, error) {
	t.Helper()
	req, err := structpb.NewStruct(fields)
	require.NoError(t, err)
	ctx := context.Background()
	if key != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, apiKeyHeader, key)
	}
	resp := &structpb.Struct{}
	err = conn.Invoke(ctx, processDocumentMethod, req, resp)
	return resp, err
}

// importRoot returns a temp directory holding pedido.pdf.
func importRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "pedido.pdf"), []byte("%PDF"), 0o600))
	real, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	return real
}

func TestGRPCProcessDocument(t *testing.T) {
	root := importRoot(t)
	in := &fakeIntake{out: sampleOutcome()}
	conn := dialTestServer(t, in, GRPCConfig{APIKey: testKey, ImportRoot: root})

	resp, err := processDocument(t, conn, testKey, map[string]any{
		"path":          filepath.Join(root, "pedido.pdf"),
		"media_type":    "application/pdf",
		"original_name": "pedido-original.pdf",
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "pedido.pdf"), in.gotPath)
	assert.Equal(t, "application/pdf", in.gotType)
	assert.Equal(t, "pedido-original.pdf", in.gotName)
	assert.Equal(t, "UNIAGENDE-20260102-abcd1234", resp.GetFields()["protocol"].GetStringValue())
	result := resp.GetFields()["result"].GetStructValue()
	assert.True(t, result.GetFields()["requires_signature"].GetBoolValue())
}

func TestGRPCProcessDocumentRelativePath(t *testing.T) {
	root := importRoot(t)
	in := &fakeIntake{out: sampleOutcome()}
	conn := dialTestServer(t, in, GRPCConfig{ImportRoot: root})

	_, err := processDocument(t, conn, "", map[string]any{"path": "pedido.pdf"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "pedido.pdf"), in.gotPath)
	assert.Equal(t, "pedido.pdf", in.gotName)
}

func TestGRPCRequiresAPIKey(t *testing.T) {
	root := importRoot(t)
	fields := map[string]any{"path": "pedido.pdf"}

	for _, tc := range []struct {
		name string
		key  string
		code codes.Code
	}{
		{"missing key", "", codes.Unauthenticated},
		{"wrong key", "guess", codes.Unauthenticated},
		{"valid key", testKey, codes.OK},
	} {
		t.Run(tc.name, func(t *testing.T) {
			in := &fakeIntake{out: sampleOutcome()}
			conn := dialTestServer(t, in, GRPCConfig{APIKey: testKey, ImportRoot: root})
			_, err := processDocument(t, conn, tc.key, fields)
			assert.Equal(t, tc.code, status.Code(err))
			if tc.code != codes.OK {
				assert.Empty(t, in.gotPath)
			}
		})
	}
}

func TestGRPCConfinesPathsToImportRoot(t *testing.T) {
	root := importRoot(t)
	outside := t.TempDir()
	secret := filepath.Join(outside, "secret.png")
	require.NoError(t, os.WriteFile(secret, []byte("secret"), 0o600))
	require.NoError(t, os.Symlink(secret, filepath.Join(root, "link.png")))

	cases := []struct {
		name string
		cfg  GRPCConfig
		path string
		code codes.Code
	}{
		{"absolute path outside", GRPCConfig{ImportRoot: root}, "/etc/passwd", codes.PermissionDenied},
		{"parent traversal", GRPCConfig{ImportRoot: root}, "../" + filepath.Base(outside) + "/secret.png", codes.PermissionDenied},
		{"symlink leaving root", GRPCConfig{ImportRoot: root}, "link.png", codes.PermissionDenied},
		{"imports disabled", GRPCConfig{}, filepath.Join(root, "pedido.pdf"), codes.FailedPrecondition},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := &fakeIntake{out: sampleOutcome()}
			conn := dialTestServer(t, in, tc.cfg)
			_, err := processDocument(t, conn, "", map[string]any{"path": tc.path, "media_type": "image/png"})
			require.Error(t, err)
			assert.Equal(t, tc.code, status.Code(err))
			assert.Empty(t, in.gotPath, "intake must not be called")
		})
	}
}

func TestGRPCProcessDocumentErrors(t *testing.T) {
	root := importRoot(t)
	cases := []struct {
		name   string
		fields map[string]any
		err    error
		code   codes.Code
	}{
		{"missing path", map[string]any{}, nil, codes.InvalidArgument},
		{"long name", map[string]any{"path": "x.pdf", "original_name": strings.Repeat("a", 256)}, nil, codes.InvalidArgument},
		{"conversion", map[string]any{"path": "x.pdf"}, common.NewConversionError(errors.New("pdftoppm")), codes.FailedPrecondition},
		{"ocr", map[string]any{"path": "x.png"}, common.NewOCRError(errors.New("tesseract")), codes.FailedPrecondition},
		{"internal", map[string]any{"path": "x.png"}, errors.New("disk full at /var/secret"), codes.Internal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			conn := dialTestServer(t, &fakeIntake{err: tc.err}, GRPCConfig{ImportRoot: root})
			_, err := processDocument(t, conn, "", tc.fields)
			require.Error(t, err)
			st, ok := status.FromError(err)
			require.True(t, ok)
			assert.Equal(t, tc.code, st.Code())
			assert.NotContains(t, st.Message(), "/var/secret")
		})
	}
}

func TestGRPCHealthSkipsAPIKey(t *testing.T) {
	conn := dialTestServer(t, &fakeIntake{}, GRPCConfig{APIKey: testKey})
	client := healthpb.NewHealthClient(conn)

	for _, svc := range []string{"", IntakeServiceName} {
		resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: svc})
		require.NoError(t, err)
		assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
	}
}
