package services

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/turtacn/sigparse/internal/application/parsing"
	"github.com/turtacn/sigparse/internal/domain/instruction"
	"github.com/turtacn/sigparse/pkg/errors"
)

type fakeParser struct {
	batchErr error
	gotMode  parsing.Mode
}

func (f *fakeParser) ParseWithID(_ context.Context, id *string, text string) []*instruction.StructuredInstruction {
	si := instruction.NewEmpty(id, text)
	si.DosageMin = instruction.Float(2)
	si.DosageMax = instruction.Float(2)
	si.AsRequired = true
	return []*instruction.StructuredInstruction{si}
}

func (f *fakeParser) ParseBatch(ctx context.Context, _ string, inputs []parsing.Input, mode parsing.Mode) ([]*instruction.StructuredInstruction, error) {
	f.gotMode = mode
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	var out []*instruction.StructuredInstruction
	for _, in := range inputs {
		out = append(out, f.ParseWithID(ctx, in.ID, in.Text)...)
	}
	return out, nil
}

func mustStruct(t *testing.T, m map[string]interface{}) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

func TestParserService_Parse(t *testing.T) {
	svc := NewParserService(&fakeParser{}, nil)

	out, err := svc.Parse(context.Background(), mustStruct(t, map[string]interface{}{"id": "r1", "text": "2 prn"}))
	require.NoError(t, err)

	var resp ParseResponse
	require.NoError(t, FromStruct(out, &resp))
	require.Len(t, resp.Results, 1)
	r := resp.Results[0]
	assert.Equal(t, "r1", *r.InputID)
	assert.InDelta(t, 2.0, *r.DosageMax, 1e-9)
	assert.True(t, r.AsRequired)
	assert.Nil(t, r.Form)

	results := out.GetFields()["results"].GetListValue().GetValues()
	require.Len(t, results, 1)
	_, isNull := results[0].GetStructValue().GetFields()["form"].GetKind().(*structpb.Value_NullValue)
	assert.True(t, isNull, "unset fields travel as null")
}

func TestParserService_ParseRequiresText(t *testing.T) {
	svc := NewParserService(&fakeParser{}, nil)
	_, err := svc.Parse(context.Background(), mustStruct(t, map[string]interface{}{"id": "r1"}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = svc.Parse(context.Background(), mustStruct(t, map[string]interface{}{"text": 5}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestParserService_ParseBatch(t *testing.T) {
	p := &fakeParser{}
	svc := NewParserService(p, nil)
	svc.newID = func() string { return "b-1" }

	out, err := svc.ParseBatch(context.Background(), mustStruct(t, map[string]interface{}{
		"texts": []interface{}{"a", "b"},
		"ids":   []interface{}{"x", "y"},
		"mode":  "parallel",
	}))
	require.NoError(t, err)

	var resp ParseResponse
	require.NoError(t, FromStruct(out, &resp))
	assert.Equal(t, "b-1", resp.BatchID)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "y", *resp.Results[1].InputID)
	assert.Equal(t, parsing.ModeParallel, p.gotMode)
}

func TestParserService_ParseBatchErrors(t *testing.T) {
	p := &fakeParser{batchErr: errors.New(errors.ErrCodeBatchTooLarge, "too many")}
	svc := NewParserService(p, nil)

	_, err := svc.ParseBatch(context.Background(), mustStruct(t, map[string]interface{}{"texts": []interface{}{"a"}}))
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
	assert.Equal(t, parsing.Mode(""), p.gotMode)

	_, err = svc.ParseBatch(context.Background(), mustStruct(t, map[string]interface{}{"texts": []interface{}{"a"}, "mode": "warp"}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestToStatus(t *testing.T) {
	assert.Nil(t, ToStatus(nil))

	already := status.Error(codes.Aborted, "x")
	assert.Equal(t, already, ToStatus(already))

	tests := []struct {
		err  error
		code codes.Code
	}{
		{errors.New(errors.ErrCodeEmptyInput, "empty"), codes.InvalidArgument},
		{errors.New(errors.ErrCodeInstructionNotFound, "missing"), codes.NotFound},
		{errors.New(errors.ErrCodeModelUnavailable, "down"), codes.Unavailable},
		{errors.New(errors.ErrCodeTimeout, "slow"), codes.DeadlineExceeded},
		{stderrors.New("secret detail"), codes.Internal},
	}
	for _, tt := range tests {
		st, ok := status.FromError(ToStatus(tt.err))
		require.True(t, ok)
		assert.Equal(t, tt.code, st.Code(), tt.err.Error())
	}

	st, _ := status.FromError(ToStatus(stderrors.New("secret detail")))
	assert.NotContains(t, st.Message(), "secret")
}

func TestStructRoundTrip(t *testing.T) {
	in := BatchRequest{Texts: []string{"bd"}, Mode: "sequential"}
	s, err := ToStruct(in)
	require.NoError(t, err)

	var back BatchRequest
	require.NoError(t, FromStruct(s, &back))
	assert.Equal(t, in, back)

	var empty BatchRequest
	require.NoError(t, FromStruct(nil, &empty))
	assert.Nil(t, empty.Texts)
}
