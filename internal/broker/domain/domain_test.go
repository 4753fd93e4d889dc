package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPageRegistry(t *testing.T) {
	pages := []Page{
		{ID: 2, Name: "B", Secret: "s2", Redirect: "https://b.example.com/login"},
		{ID: 1, Name: "A", Secret: "s1", Redirect: "https://a.example.com/login"},
		{ID: 3, Name: "C", Secret: "s3", Redirect: "https://a.example.com/other"},
	}

	reg, err := NewPageRegistry(pages)
	require.NoError(t, err)
	require.Equal(t, 3, reg.Len())

	t.Run("get", func(t *testing.T) {
		p, err := reg.Get(2)
		require.NoError(t, err)
		require.Equal(t, "B", p.Name)

		_, err = reg.Get(9)
		require.ErrorIs(t, err, ErrPageUnknown)
	})

	t.Run("host match prefers lowest page id", func(t *testing.T) {
		// Pages 1 and 3 share a redirect host; the match must be
		// deterministic regardless of configuration order.
		p, ok := reg.MatchRedirectHost("a.example.com")
		require.True(t, ok)
		require.Equal(t, int64(1), p.ID)

		_, ok = reg.MatchRedirectHost("nowhere.example.com")
		require.False(t, ok)
	})
}

func TestPageRegistryValidation(t *testing.T) {
	cases := []struct {
		name  string
		pages []Page
	}{
		{"zero id", []Page{{ID: 0, Name: "A", Secret: "s", Redirect: "https://a.example.com"}}},
		{"negative id", []Page{{ID: -1, Name: "A", Secret: "s", Redirect: "https://a.example.com"}}},
		{"duplicate id", []Page{
			{ID: 1, Name: "A", Secret: "s", Redirect: "https://a.example.com"},
			{ID: 1, Name: "B", Secret: "s", Redirect: "https://b.example.com"},
		}},
		{"missing name", []Page{{ID: 1, Secret: "s", Redirect: "https://a.example.com"}}},
		{"missing secret", []Page{{ID: 1, Name: "A", Redirect: "https://a.example.com"}}},
		{"missing redirect", []Page{{ID: 1, Name: "A", Secret: "s"}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewPageRegistry(tc.pages)
			require.Error(t, err)
		})
	}
}

func TestUserPublic(t *testing.T) {
	now := time.Now()
	u := User{
		ID:           7,
		Username:     "grace@example.com",
		PasswordHash: "$argon2id$...",
		CreatedAt:    now,
		LastLoginAt:  &now,
		Authenticators: []Authenticator{{
			ID:      "01J0000000000000000000000",
			UserID:  7,
			Type:    AuthenticatorTOTP,
			Label:   "phone",
			Secret:  "JBSWY3DPEHPK3PXP",
			Counter: 3,
		}},
	}

	pub := u.Public()
	require.Equal(t, int64(7), pub.ID)
	require.Equal(t, "grace@example.com", pub.Username)
	require.Len(t, pub.Authenticators, 1)
	require.Equal(t, "phone", pub.Authenticators[0].Label)
}
