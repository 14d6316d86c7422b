package interceptors

import "fmt"

// ProfileError reports a profile reference that cannot be resolved.
type ProfileError struct {
	Interceptor string
	Profile     string
	Reason      string
}

func (e *ProfileError) Error() string {
	return fmt.Sprintf("%s profile %q: %s", e.Interceptor, e.Profile, e.Reason)
}

// GetProfileConfig returns [http.interceptors.<interceptor>.profiles.<profile>]
// from all, which is normally Config.HTTP.Interceptors.
func GetProfileConfig(all map[string]map[string]any, interceptor, profile string) (map[string]any, error) {
	fail := func(reason string) (map[string]any, error) {
		return nil, &ProfileError{Interceptor: interceptor, Profile: profile, Reason: reason}
	}
	section, ok := all[interceptor]
	if !ok {
		return fail("interceptor not configured")
	}
	profiles, ok := section["profiles"].(map[string]any)
	if !ok {
		return fail("no profiles table")
	}
	raw, ok := profiles[profile]
	if !ok {
		return fail("not defined")
	}
	conf, ok := raw.(map[string]any)
	if !ok {
		return fail("not a table")
	}
	return conf, nil
}
