package config

import (
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/stretchr/testify/require"
)

func TestModel_Validate(t *testing.T) {
	t.Parallel()

	expr := func() hcl.Expression {
		e, diags := hclsyntax.ParseExpression([]byte("row"), "test.hcl", hcl.InitialPos)
		require.False(t, diags.HasErrors())
		return e
	}

	testCases := []struct {
		name    string
		model   *Model
		wantErr string
	}{
		{
			name:  "valid",
			model: &Model{Source: &Source{Table: "t"}, Stages: []*Stage{{Name: "a", Value: expr()}}},
		},
		{
			name:    "missing source",
			model:   &Model{},
			wantErr: "no source block",
		},
		{
			name:    "stage without value",
			model:   &Model{Source: &Source{}, Stages: []*Stage{{Name: "a"}}},
			wantErr: `stage "a": value is required`,
		},
		{
			name: "duplicate stage",
			model: &Model{Source: &Source{}, Stages: []*Stage{
				{Name: "a", Value: expr()},
				{Name: "a", Value: expr()},
			}},
			wantErr: "defined more than once",
		},
		{
			name:    "headers without value",
			model:   &Model{Source: &Source{}, Headers: &Stage{Name: "headers"}},
			wantErr: "headers: value is required",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := tc.model.Validate()

			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}
