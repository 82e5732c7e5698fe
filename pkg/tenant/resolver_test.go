package tenant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v int64) *int64 { return &v }

func TestResolve(t *testing.T) {
	tests := []struct {
		name          string
		tokenCompany  *int64
		headerCompany *int64
		memberships   []int64
		platformAdmin bool
		want          *int64
		wantErr       error
	}{
		{
			name:        "single membership resolves implicitly",
			memberships: []int64{7},
			want:        ptr(7),
		},
		{
			name:        "multiple memberships without selection is ambiguous",
			memberships: []int64{7, 9},
			wantErr:     ErrAmbiguous,
		},
		{
			name:          "header selects among multiple memberships",
			headerCompany: ptr(9),
			memberships:   []int64{7, 9},
			want:          ptr(9),
		},
		{
			name:          "header outside memberships is a mismatch",
			headerCompany: ptr(42),
			memberships:   []int64{7, 9},
			wantErr:       ErrMismatch,
		},
		{
			name:         "token company wins over implicit single membership",
			tokenCompany: ptr(9),
			memberships:  []int64{7, 9},
			want:         ptr(9),
		},
		{
			name:          "header wins over token company",
			tokenCompany:  ptr(7),
			headerCompany: ptr(9),
			memberships:   []int64{7, 9},
			want:          ptr(9),
		},
		{
			name:         "token company no longer a membership is a mismatch",
			tokenCompany: ptr(42),
			memberships:  []int64{7},
			wantErr:      ErrMismatch,
		},
		{
			name:    "no memberships is a mismatch",
			wantErr: ErrMismatch,
		},
		{
			name:          "platform admin with nothing resolves unscoped",
			platformAdmin: true,
			want:          nil,
		},
		{
			name:          "platform admin may pin any company",
			headerCompany: ptr(42),
			platformAdmin: true,
			want:          ptr(42),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.tokenCompany, tt.headerCompany, tt.memberships, tt.platformAdmin)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			if tt.want == nil {
				assert.Nil(t, got)
			} else {
				require.NotNil(t, got)
				assert.Equal(t, *tt.want, *got)
			}
		})
	}
}

func TestResolveReturnsCopy(t *testing.T) {
	header := ptr(7)
	got, err := Resolve(nil, header, []int64{7}, false)
	require.NoError(t, err)

	*header = 99
	assert.Equal(t, int64(7), *got)
}
