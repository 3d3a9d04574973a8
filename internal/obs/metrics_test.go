package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                "/",
		"/metrics":                        "/metrics",
		"/v1/users":                       "/v1/users",
		"/v1/users/01HZX3":                "/v1/users/:id",
		"/v1/users/01HZX3/permissions":    "/v1/users/:id/permissions",
		"/v1/users/01HZX3/role":           "/v1/users/:id/role",
		"/v1/org-units/01HZY9":            "/v1/org-units/:id",
		"/v1/org-units/01HZY9/children":   "/v1/org-units/:id/children",
		"/v1/permissions/01HZZ1":          "/v1/permissions/:id",
		"/v1/audit-logs":                  "/v1/audit-logs",
		"/v1/audit-logs?limit=10":         "/v1/audit-logs",
		"/v1/session":                     "/v1/session",
		"/v1/shifts/weekly/irrelevant/x":  "/v1/shifts/weekly/irrelevant/x",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
