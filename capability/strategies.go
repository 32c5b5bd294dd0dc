package capability

import (
	"context"
	"fmt"
	"strconv"

	"github.com/GoCodeAlone/stackplan/manifest"
)

// actionsFor expands an access level into concrete action identifiers.
// readwrite is the union of read and write; admin additionally includes
// the management actions.
func actionsFor(access manifest.AccessLevel, read, write, admin []string) []string {
	var sets [][]string
	switch access {
	case manifest.AccessRead:
		sets = [][]string{read}
	case manifest.AccessWrite:
		sets = [][]string{write}
	case manifest.AccessReadWrite:
		sets = [][]string{read, write}
	case manifest.AccessAdmin:
		sets = [][]string{read, write, admin}
	}
	seen := make(map[string]bool)
	var out []string
	for _, set := range sets {
		for _, action := range set {
			if !seen[action] {
				seen[action] = true
				out = append(out, action)
			}
		}
	}
	return out
}

// grantConditions builds the grant conditions mandated by the compliance
// options, in a stable shape.
func grantConditions(in ResolveInput) map[string]string {
	conds := make(map[string]string)
	if in.Options.RequireTLS {
		conds["secure-transport"] = "required"
	}
	if in.Options.RequireEncryptionAtRest {
		conds["encryption-at-rest"] = "required"
	}
	if in.Options.PrivateNetworkOnly {
		conds["network-origin"] = "private"
	}
	if len(conds) == 0 {
		return nil
	}
	return conds
}

// egressRule emits the single egress rule a binding needs to reach its
// target, defaulting the port when the endpoint does not carry one.
func egressRule(in ResolveInput, defaultPort int) NetworkRule {
	port := in.Data.Endpoint.Port
	if port == 0 {
		port = defaultPort
	}
	return NetworkRule{
		Peer:      in.Target.Name,
		Ports:     PortRange{From: port, To: port},
		Direction: DirectionEgress,
	}
}

// QueueStrategy resolves bindings against message-queue capabilities
// (SQS-shaped: a URL resource plus an optional ARN for grant scoping).
type QueueStrategy struct{}

// Name implements Strategy.
func (s *QueueStrategy) Name() string { return "queue" }

// Resolve implements Strategy.
func (s *QueueStrategy) Resolve(ctx context.Context, in ResolveInput) (*Resolution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	url, err := in.Data.Resource("url")
	if err != nil {
		return nil, err
	}
	scope := url
	if arn, ok := in.Data.Resources["arn"]; ok && arn != "" {
		scope = arn
	}

	res := &Resolution{
		EnvVars: []EnvVar{
			{Name: in.EnvName("QUEUE_URL"), Value: url},
		},
	}
	if name, ok := in.Data.Resources["name"]; ok && name != "" {
		res.EnvVars = append(res.EnvVars, EnvVar{Name: in.EnvName("QUEUE_NAME"), Value: name})
	}

	res.Grants = []AccessGrant{{
		Effect: EffectAllow,
		Actions: actionsFor(in.Directive.Access,
			[]string{"sqs:ReceiveMessage", "sqs:DeleteMessage", "sqs:GetQueueAttributes"},
			[]string{"sqs:SendMessage", "sqs:GetQueueAttributes"},
			[]string{"sqs:PurgeQueue", "sqs:SetQueueAttributes"}),
		Resource:   scope,
		Conditions: grantConditions(in),
	}}
	res.NetworkRules = []NetworkRule{egressRule(in, 443)}
	return res, nil
}

// ObjectStoreStrategy resolves bindings against object-storage
// capabilities (S3-shaped: bucket name plus optional ARN).
type ObjectStoreStrategy struct{}

// Name implements Strategy.
func (s *ObjectStoreStrategy) Name() string { return "object-store" }

// Resolve implements Strategy.
func (s *ObjectStoreStrategy) Resolve(ctx context.Context, in ResolveInput) (*Resolution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bucket, err := in.Data.Resource("name")
	if err != nil {
		return nil, err
	}
	scope := bucket
	if arn, ok := in.Data.Resources["arn"]; ok && arn != "" {
		scope = arn
	}

	res := &Resolution{
		EnvVars: []EnvVar{
			{Name: in.EnvName("BUCKET_NAME"), Value: bucket},
		},
	}
	if in.Data.Endpoint.Host != "" {
		res.EnvVars = append(res.EnvVars, EnvVar{
			Name:  in.EnvName("BUCKET_ENDPOINT"),
			Value: endpointURL(in.Data.Endpoint, in.Options.RequireTLS, 443),
		})
	}

	res.Grants = []AccessGrant{{
		Effect: EffectAllow,
		Actions: actionsFor(in.Directive.Access,
			[]string{"s3:GetObject", "s3:ListBucket"},
			[]string{"s3:PutObject", "s3:AbortMultipartUpload"},
			[]string{"s3:DeleteBucket", "s3:PutBucketPolicy"}),
		Resource:   scope,
		Conditions: grantConditions(in),
	}}
	res.NetworkRules = []NetworkRule{egressRule(in, 443)}
	return res, nil
}

// DatabaseStrategy resolves bindings against relational-database
// capabilities (Postgres-shaped: host/port endpoint, database name,
// credentials as secret references).
type DatabaseStrategy struct{}

// Name implements Strategy.
func (s *DatabaseStrategy) Name() string { return "database" }

// Resolve implements Strategy.
func (s *DatabaseStrategy) Resolve(ctx context.Context, in ResolveInput) (*Resolution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dbName, err := in.Data.Resource("name")
	if err != nil {
		return nil, err
	}
	scope := dbName
	if id, ok := in.Data.Resources["id"]; ok && id != "" {
		scope = id
	}

	port := in.Data.Endpoint.Port
	if port == 0 {
		port = 5432
	}
	sslMode := "prefer"
	if in.Options.RequireTLS || in.Data.RequiresTLS {
		sslMode = "require"
	}

	res := &Resolution{
		EnvVars: []EnvVar{
			{Name: in.EnvName("DB_HOST"), Value: in.Data.Endpoint.Host},
			{Name: in.EnvName("DB_PORT"), Value: strconv.Itoa(port)},
			{Name: in.EnvName("DB_NAME"), Value: dbName},
			{Name: in.EnvName("DB_SSLMODE"), Value: sslMode},
		},
	}
	if ref, ok := in.Data.Secrets["username"]; ok {
		res.EnvVars = append(res.EnvVars, EnvVar{Name: in.EnvName("DB_USERNAME_REF"), Value: ref.String()})
	}
	if ref, ok := in.Data.Secrets["password"]; ok {
		res.EnvVars = append(res.EnvVars, EnvVar{Name: in.EnvName("DB_PASSWORD_REF"), Value: ref.String()})
	}

	res.Grants = []AccessGrant{{
		Effect: EffectAllow,
		Actions: actionsFor(in.Directive.Access,
			[]string{"db:Connect", "db:Select"},
			[]string{"db:Insert", "db:Update", "db:Delete"},
			[]string{"db:Ddl", "db:GrantRole"}),
		Resource:   scope,
		Conditions: grantConditions(in),
	}}
	res.NetworkRules = []NetworkRule{egressRule(in, 5432)}
	return res, nil
}

// CacheStrategy resolves bindings against cache capabilities
// (Redis-shaped: host/port endpoint, optional auth secret).
type CacheStrategy struct{}

// Name implements Strategy.
func (s *CacheStrategy) Name() string { return "cache" }

// Resolve implements Strategy.
func (s *CacheStrategy) Resolve(ctx context.Context, in ResolveInput) (*Resolution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if in.Data.Endpoint.Host == "" {
		return nil, fmt.Errorf("capability data for %q has no endpoint host", in.Data.Type)
	}
	port := in.Data.Endpoint.Port
	if port == 0 {
		port = 6379
	}
	scope := in.Target.Name
	if id, ok := in.Data.Resources["id"]; ok && id != "" {
		scope = id
	}

	useTLS := in.Options.RequireTLS || in.Data.RequiresTLS
	res := &Resolution{
		EnvVars: []EnvVar{
			{Name: in.EnvName("REDIS_HOST"), Value: in.Data.Endpoint.Host},
			{Name: in.EnvName("REDIS_PORT"), Value: strconv.Itoa(port)},
			{Name: in.EnvName("REDIS_TLS"), Value: strconv.FormatBool(useTLS)},
		},
	}
	if ref, ok := in.Data.Secrets["auth"]; ok {
		res.EnvVars = append(res.EnvVars, EnvVar{Name: in.EnvName("REDIS_AUTH_REF"), Value: ref.String()})
	}

	res.Grants = []AccessGrant{{
		Effect: EffectAllow,
		Actions: actionsFor(in.Directive.Access,
			[]string{"cache:Get"},
			[]string{"cache:Set", "cache:Del"},
			[]string{"cache:FlushDb", "cache:Config"}),
		Resource:   scope,
		Conditions: grantConditions(in),
	}}
	res.NetworkRules = []NetworkRule{egressRule(in, 6379)}
	return res, nil
}

// HTTPServiceStrategy resolves invocation bindings against HTTP service
// capabilities.
type HTTPServiceStrategy struct{}

// Name implements Strategy.
func (s *HTTPServiceStrategy) Name() string { return "http-service" }

// Resolve implements Strategy.
func (s *HTTPServiceStrategy) Resolve(ctx context.Context, in ResolveInput) (*Resolution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if in.Data.Endpoint.Host == "" {
		return nil, fmt.Errorf("capability data for %q has no endpoint host", in.Data.Type)
	}

	defaultPort := 80
	if in.Options.RequireTLS || in.Data.RequiresTLS || in.Data.Endpoint.Scheme == "https" {
		defaultPort = 443
	}
	baseURL := endpointURL(in.Data.Endpoint, in.Options.RequireTLS || in.Data.RequiresTLS, defaultPort)

	scope := in.Target.Name
	if id, ok := in.Data.Resources["id"]; ok && id != "" {
		scope = id
	}

	res := &Resolution{
		EnvVars: []EnvVar{
			{Name: in.EnvName("BASE_URL"), Value: baseURL},
		},
		Grants: []AccessGrant{{
			Effect: EffectAllow,
			Actions: actionsFor(in.Directive.Access,
				[]string{"http:Invoke"},
				[]string{"http:Invoke"},
				[]string{"http:Configure"}),
			Resource:   scope,
			Conditions: grantConditions(in),
		}},
		NetworkRules: []NetworkRule{egressRule(in, defaultPort)},
	}
	return res, nil
}

// endpointURL renders an endpoint as a URL, upgrading the scheme to its
// TLS form when forceTLS is set.
func endpointURL(e Endpoint, forceTLS bool, defaultPort int) string {
	scheme := e.Scheme
	if scheme == "" {
		scheme = "http"
	}
	if forceTLS && scheme == "http" {
		scheme = "https"
	}
	port := e.Port
	if port == 0 {
		port = defaultPort
	}
	return fmt.Sprintf("%s://%s:%d", scheme, e.Host, port)
}
