package grpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"payment-engine/internal/logger"
	"payment-engine/internal/models"
	"payment-engine/internal/services"
	"payment-engine/pkg/common"
)

type Server struct {
	Transactions *services.TransactionService
	Receipts     *services.ReceiptService
	Reports      *services.ReconciliationService
}

func NewServer(transactions *services.TransactionService, receipts *services.ReceiptService, reports *services.ReconciliationService) *Server {
	return &Server{
		Transactions: transactions,
		Receipts:     receipts,
		Reports:      reports,
	}
}

// NewGRPCServer builds a grpc.Server with the transaction service, health
// and reflection registered.
func NewGRPCServer(srv *Server) *grpc.Server {
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			LoggingInterceptor,
		),
	)
	RegisterTransactionServiceServer(s, srv)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)

	reflection.Register(s)
	return s
}

// StartGRPCServer listens on port and serves until the listener fails.
func StartGRPCServer(port string, srv *Server) error {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return fmt.Errorf("grpc.StartGRPCServer: listen: %w", err)
	}
	s := NewGRPCServer(srv)

	logger.Logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC server listening")
	if err := s.Serve(lis); err != nil {
		return fmt.Errorf("grpc.StartGRPCServer: %w", err)
	}
	return nil
}

func (s *Server) Create(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	in := req.AsMap()
	amount, err := decimalField(in, "amount")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	tx, created, err := s.Transactions.CreateTransaction(ctx, services.CreateTransactionInput{
		Reference:  stringField(in, "reference"),
		UserID:     stringField(in, "user_id"),
		PropertyID: stringField(in, "property_id"),
		Amount:     amount,
		Currency:   models.Currency(stringField(in, "currency")),
		Type:       models.TransactionType(stringField(in, "type")),
		Method:     models.PaymentMethod(stringField(in, "method")),
		Gateway:    stringField(in, "gateway"),
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]interface{}{
		"created":     created,
		"transaction": transactionMap(tx),
	})
}

func (s *Server) Get(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	tx, err := s.Transactions.GetTransaction(ctx, stringField(req.AsMap(), "id"))
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]interface{}{"transaction": transactionMap(tx)})
}

func (s *Server) ListUser(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	in := req.AsMap()
	page := intField(in, "page", 1)
	limit := intField(in, "limit", 20)

	txs, total, err := s.Transactions.ListUserTransactions(ctx, stringField(in, "user_id"), page, limit)
	if err != nil {
		return nil, toStatus(err)
	}

	data := make([]interface{}, 0, len(txs))
	for i := range txs {
		data = append(data, transactionMap(&txs[i]))
	}
	return toStruct(map[string]interface{}{
		"data":  data,
		"count": total,
		"page":  page,
		"limit": limit,
	})
}

func (s *Server) Initialize(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	tx, err := s.Transactions.InitializeGatewaySession(ctx, stringField(req.AsMap(), "id"))
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]interface{}{"transaction": transactionMap(tx)})
}

func (s *Server) Retry(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	tx, err := s.Transactions.RetryTransaction(ctx, stringField(req.AsMap(), "id"))
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]interface{}{"transaction": transactionMap(tx)})
}

func (s *Server) Refund(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	tx, err := s.Transactions.RequestRefund(ctx, stringField(req.AsMap(), "id"))
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]interface{}{"transaction": transactionMap(tx)})
}

func (s *Server) Verify(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	tx, err := s.Transactions.VerifyTransaction(ctx, stringField(req.AsMap(), "id"))
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]interface{}{"transaction": transactionMap(tx)})
}

func (s *Server) GenerateReceipt(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	receipt, err := s.Receipts.GenerateReceipt(ctx, stringField(req.AsMap(), "id"))
	if err != nil {
		return nil, toStatus(err)
	}
	out, err := jsonMap(receipt)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out["content"] = string(receipt.Content)
	return toStruct(map[string]interface{}{"receipt": out})
}

func (s *Server) Summary(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	report, err := s.Reports.Summarize(ctx, services.ReportFilter{UserID: stringField(req.AsMap(), "user_id")})
	if err != nil {
		return nil, toStatus(err)
	}
	out, err := jsonMap(report)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return toStruct(map[string]interface{}{"report": out})
}

// --- conversion helpers ---

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

func intField(m map[string]interface{}, key string, fallback int) int {
	if f, ok := m[key].(float64); ok && f > 0 {
		return int(f)
	}
	return fallback
}

// decimalField reads an amount sent as a string ("500000.00") or a number.
func decimalField(m map[string]interface{}, key string) (decimal.Decimal, error) {
	switch v := m[key].(type) {
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%s: %w", key, err)
		}
		return d, nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case nil:
		return decimal.Zero, nil
	default:
		return decimal.Zero, fmt.Errorf("%s: unsupported type %T", key, v)
	}
}

func jsonMap(v interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func transactionMap(tx *models.Transaction) map[string]interface{} {
	out, err := jsonMap(tx)
	if err != nil {
		return map[string]interface{}{"id": tx.ID}
	}
	out["formatted_amount"] = common.FormatAmount(tx.Amount, string(tx.Currency))
	return out
}

func toStruct(m map[string]interface{}) (*structpb.Struct, error) {
	// structpb only accepts JSON-shaped values
	normalized, err := jsonMap(m)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out, err := structpb.NewStruct(normalized)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}
