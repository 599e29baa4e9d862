package cfg

import (
	"context"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/linnemanlabs-api/internal/xerrors"
)

// ParameterLister is the subset of the SSM client used to read a
// parameter path.
type ParameterLister interface {
	ssm.GetParametersByPathAPIClient
}

// fetchSSM reads every parameter under prefix (recursively, decrypted) and
// returns them keyed by environment variable name: the base name of the
// parameter, upper-cased, with dashes replaced by underscores.
func fetchSSM(ctx context.Context, client ParameterLister, prefix string) (map[string]string, error) {
	if client == nil {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, xerrors.Wrap(err, "load AWS config")
		}
		client = ssm.NewFromConfig(awsCfg)
	}

	out := make(map[string]string)
	p := ssm.NewGetParametersByPathPaginator(client, &ssm.GetParametersByPathInput{
		Path:           aws.String(prefix),
		Recursive:      aws.Bool(true),
		WithDecryption: aws.Bool(true),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, xerrors.Wrapf(err, "get SSM parameters under %s", prefix)
		}
		for _, param := range page.Parameters {
			if param.Name == nil || param.Value == nil {
				continue
			}
			key := strings.ToUpper(strings.ReplaceAll(path.Base(*param.Name), "-", "_"))
			out[key] = *param.Value
		}
	}
	return out, nil
}
