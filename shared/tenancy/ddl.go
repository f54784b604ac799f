package tenancy

import (
	"fmt"
	"strings"

	"github.com/pavitra93/go-multi-tenant-blog/shared/models"
)

// tableColumns holds the column list of every tenant table, keyed by table name
var tableColumns = map[string]string{
	models.TableUsers: `
	id uuid PRIMARY KEY,
	email varchar(255) NOT NULL UNIQUE,
	password text NOT NULL,
	name varchar(100) NOT NULL,
	is_active boolean NOT NULL DEFAULT true,
	is_admin boolean NOT NULL DEFAULT false,
	ip varchar(64),
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now()`,

	models.TableCredentials: `
	id uuid PRIMARY KEY,
	user_id uuid NOT NULL UNIQUE REFERENCES {{schema}}.users(id) ON DELETE CASCADE,
	version integer NOT NULL DEFAULT 0,
	last_password text NOT NULL DEFAULT '',
	password_updated_at bigint NOT NULL DEFAULT 0,
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now()`,

	models.TableArticles: `
	id uuid PRIMARY KEY,
	title varchar(100) NOT NULL,
	perex varchar(255) NOT NULL,
	content text NOT NULL,
	status varchar(16) NOT NULL DEFAULT 'DRAFT',
	author_id uuid NOT NULL REFERENCES {{schema}}.users(id) ON DELETE CASCADE,
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now()`,

	models.TableComments: `
	id uuid PRIMARY KEY,
	article_id uuid NOT NULL REFERENCES {{schema}}.articles(id) ON DELETE CASCADE,
	user_id uuid NOT NULL REFERENCES {{schema}}.users(id) ON DELETE CASCADE,
	parent_id uuid REFERENCES {{schema}}.comments(id) ON DELETE CASCADE,
	text text NOT NULL,
	rating_score integer NOT NULL DEFAULT 0,
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now()`,

	models.TableUserImages: `
	id uuid PRIMARY KEY,
	url text NOT NULL,
	user_id uuid NOT NULL REFERENCES {{schema}}.users(id) ON DELETE CASCADE,
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now()`,

	models.TableArticleImages: `
	id uuid PRIMARY KEY,
	url text NOT NULL,
	article_id uuid NOT NULL REFERENCES {{schema}}.articles(id) ON DELETE CASCADE,
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now()`,

	models.TableRatings: `
	id uuid PRIMARY KEY,
	is_upvote boolean NOT NULL,
	user_id uuid NOT NULL REFERENCES {{schema}}.users(id) ON DELETE CASCADE,
	comment_id uuid NOT NULL REFERENCES {{schema}}.comments(id) ON DELETE CASCADE,
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now(),
	UNIQUE (user_id, comment_id)`,

	models.TableBlacklistedTokens: `
	token_id varchar(64) PRIMARY KEY,
	user_id uuid NOT NULL REFERENCES {{schema}}.users(id) ON DELETE CASCADE,
	created_at bigint NOT NULL`,
}

// TableDDL returns the CREATE TABLE statements for schema in creation order
func TableDDL(schema Schema) []string {
	quoted := QuoteIdent(string(schema))
	stmts := make([]string, 0, len(models.TenantTables))
	for _, table := range models.TenantTables {
		cols := strings.ReplaceAll(tableColumns[table], "{{schema}}", quoted)
		stmts = append(stmts, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.%s (%s\n)", quoted, table, cols))
	}
	return stmts
}
