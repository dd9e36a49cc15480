package auth

import (
	"context"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"todoService/internal/testutil"
)

func TestParseFromMD(t *testing.T) {
	svc := NewTokenService([]byte(testSecret), 0)

	tok := testutil.GenerateJWTHS256(t, testSecret, 5, "alice", time.Now().Add(time.Hour))
	p, err := ParseFromMD(testutil.CtxWithBearer(context.Background(), tok), svc)
	if err != nil {
		t.Fatalf("ParseFromMD: %v", err)
	}
	if p.UserID != 5 || p.Username != "alice" {
		t.Fatalf("principal mismatch: %+v", p)
	}

	if _, err := ParseFromMD(context.Background(), svc); err == nil {
		t.Fatalf("expected error for missing metadata")
	}

	wrong := testutil.GenerateJWTHS256(t, "wrong", 5, "alice", time.Now().Add(time.Hour))
	if _, err := ParseFromMD(testutil.CtxWithBearer(context.Background(), wrong), svc); err == nil {
		t.Fatalf("expected error for wrong secret")
	}
}

func TestUnaryAuthInterceptor(t *testing.T) {
	svc := NewTokenService([]byte(testSecret), 0)
	interceptor := NewUnaryAuthInterceptor(svc, "/todo.v1.TodoService/Login")

	// Allowlisted method: no metadata, handler runs without principal.
	hCalled := false
	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/todo.v1.TodoService/Login"}, func(ctx context.Context, req any) (any, error) {
		hCalled = true
		if _, ok := FromContext(ctx); ok {
			t.Fatalf("expected no principal on allowlisted method")
		}
		return nil, nil
	})
	if err != nil || !hCalled {
		t.Fatalf("allowlisted handler err=%v called=%v", err, hCalled)
	}

	// Protected method without token.
	_, err = interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/todo.v1.TodoService/ListItems"}, func(ctx context.Context, req any) (any, error) {
		t.Fatalf("handler must not run")
		return nil, nil
	})
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}

	// Expired and forged tokens produce the same status message.
	expired := testutil.GenerateJWTHS256(t, testSecret, 5, "a", time.Now().Add(-time.Minute))
	forged := testutil.GenerateJWTHS256(t, "x", 5, "a", time.Now().Add(time.Hour))
	var msgs []string
	for _, tok := range []string{expired, forged} {
		_, err := interceptor(testutil.CtxWithBearer(context.Background(), tok), nil,
			&grpc.UnaryServerInfo{FullMethod: "/todo.v1.TodoService/ListItems"},
			func(ctx context.Context, req any) (any, error) { return nil, nil })
		st, _ := status.FromError(err)
		if st.Code() != codes.Unauthenticated {
			t.Fatalf("expected Unauthenticated, got %v", err)
		}
		msgs = append(msgs, st.Message())
	}
	if msgs[0] != msgs[1] {
		t.Fatalf("failure causes leaked: %q vs %q", msgs[0], msgs[1])
	}

	// Valid token: principal injected.
	tok := testutil.GenerateJWTHS256(t, testSecret, 11, "bob", time.Now().Add(time.Hour))
	_, err = interceptor(testutil.CtxWithBearer(context.Background(), tok), nil, &grpc.UnaryServerInfo{FullMethod: "/todo.v1.TodoService/ListItems"}, func(ctx context.Context, req any) (any, error) {
		p, ok := FromContext(ctx)
		if !ok || p.UserID != 11 || p.Username != "bob" {
			t.Fatalf("principal not injected: %+v ok=%v", p, ok)
		}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("interceptor auth path: %v", err)
	}
}
