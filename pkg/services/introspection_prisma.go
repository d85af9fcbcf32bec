package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-studio/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-studio/pkg/config"
	"github.com/ekaya-inc/ekaya-studio/pkg/logging"
	"github.com/ekaya-inc/ekaya-studio/pkg/models"
	"github.com/ekaya-inc/ekaya-studio/pkg/prismaschema"
)

// maxPullOutput bounds what the pull command may write to stdout or stderr.
const maxPullOutput = 10 << 20

const defaultPullTimeout = 2 * time.Minute

// npm variables that make npx refuse to run when inherited from a parent npm process.
var scrubbedEnvVars = []string{
	"npm_config_npm_globalconfig",
	"npm_config_verify_deps_before_run",
	"npm_config__jsr_registry",
}

// PrismaIntrospector runs `prisma db pull` against a throwaway schema file and
// converts the pulled models into table metadata.
type PrismaIntrospector struct {
	command []string
	timeout time.Duration
	tempDir string
	logger  *zap.Logger
}

// NewPrismaIntrospector creates an introspector running cfg.Command.
func NewPrismaIntrospector(cfg config.IntrospectionConfig, logger *zap.Logger) *PrismaIntrospector {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultPullTimeout
	}
	return &PrismaIntrospector{
		command: cfg.CommandArgs(),
		timeout: timeout,
		tempDir: os.TempDir(),
		logger:  logger.Named("prisma-introspector"),
	}
}

// Introspect implements SchemaIntrospector.
func (p *PrismaIntrospector) Introspect(ctx context.Context, connString string) ([]models.TableMeta, error) {
	dialect, err := datasource.DetectDialect(connString)
	if err != nil {
		return nil, err
	}
	if len(p.command) == 0 {
		return nil, introspectionError(errors.New("no introspection command configured"))
	}

	block, err := datasourceBlock(dialect, connString)
	if err != nil {
		return nil, introspectionError(err)
	}

	schemaPath := filepath.Join(p.tempDir, fmt.Sprintf("prisma-schema-%s.prisma", uuid.NewString()))
	if err := os.WriteFile(schemaPath, []byte(block), 0o600); err != nil {
		return nil, introspectionError(fmt.Errorf("write schema file: %w", err))
	}
	defer func() {
		if err := os.Remove(schemaPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			p.logger.Warn("Failed to remove temporary schema file",
				zap.String("path", schemaPath),
				zap.Error(err))
		}
	}()

	start := time.Now()
	if err := p.pull(ctx, schemaPath); err != nil {
		return nil, introspectionError(err)
	}

	pulled, err := os.ReadFile(schemaPath)
	if err != nil {
		return nil, introspectionError(fmt.Errorf("read pulled schema: %w", err))
	}

	schema, err := prismaschema.Parse(string(pulled))
	if err != nil {
		return nil, introspectionError(fmt.Errorf("parse pulled schema: %w", err))
	}
	tables := schema.TableMetas()

	p.logger.Debug("Introspected database",
		zap.String("dialect", string(dialect)),
		zap.String("url", logging.SanitizeConnectionString(connString)),
		zap.Int("tables", len(tables)),
		zap.Duration("elapsed", time.Since(start)))

	return tables, nil
}

func (p *PrismaIntrospector) pull(ctx context.Context, schemaPath string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := make([]string, 0, len(p.command)+1)
	args = append(args, p.command[1:]...)
	args = append(args, "--schema="+schemaPath, "--force")

	cmd := exec.CommandContext(ctx, p.command[0], args...)
	cmd.Env = scrubEnv(os.Environ())

	stdout := &cappedBuffer{limit: maxPullOutput}
	stderr := &cappedBuffer{limit: maxPullOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	runErr := cmd.Run()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("introspection timed out after %s", p.timeout)
	}
	if runErr != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%w: %s", runErr, logging.SanitizeConnectionString(msg))
		}
		return runErr
	}
	if stdout.overflow || stderr.overflow {
		return fmt.Errorf("introspection output exceeded %d bytes", maxPullOutput)
	}

	if msg := strings.TrimSpace(stderr.String()); msg != "" && !isBenignStderr(msg) {
		p.logger.Warn("Prisma introspection warnings",
			zap.String("stderr", logging.TruncateString(logging.SanitizeConnectionString(msg), 2000)))
	}
	return nil
}

// datasourceBlock renders the schema file handed to `prisma db pull`.
// SQLite paths are made absolute because Prisma resolves relative file:
// URLs against the schema file's directory.
func datasourceBlock(dialect datasource.Dialect, connString string) (string, error) {
	url := strings.TrimSpace(connString)
	if dialect == datasource.DialectSQLite {
		path := strings.TrimPrefix(datasource.StripSQLitePrefix(url), "file:")
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("resolve sqlite path: %w", err)
		}
		url = "file:" + abs
	}

	return fmt.Sprintf("datasource db {\n  provider = %s\n  url      = %s\n}\n",
		strconv.Quote(dialect.PrismaProvider()), strconv.Quote(url)), nil
}

func isBenignStderr(s string) bool {
	lower := strings.ToLower(s)
	return strings.Contains(lower, "warning") || strings.Contains(lower, "npm warn")
}

func scrubEnv(environ []string) []string {
	out := make([]string, 0, len(environ))
next:
	for _, kv := range environ {
		for _, name := range scrubbedEnvVars {
			if strings.HasPrefix(kv, name+"=") {
				continue next
			}
		}
		out = append(out, kv)
	}
	return out
}

// cappedBuffer keeps at most limit bytes and records whether more arrived.
type cappedBuffer struct {
	buf      bytes.Buffer
	limit    int
	overflow bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); room < len(p) {
		b.overflow = true
		if room > 0 {
			b.buf.Write(p[:room])
		}
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) String() string {
	return b.buf.String()
}
