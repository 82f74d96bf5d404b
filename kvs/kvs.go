// Package kvs opens live media reads against Kinesis Video Streams.
package kvs

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesisvideo"
	kvtypes "github.com/aws/aws-sdk-go-v2/service/kinesisvideo/types"
	"github.com/aws/aws-sdk-go-v2/service/kinesisvideomedia"
	kvmtypes "github.com/aws/aws-sdk-go-v2/service/kinesisvideomedia/types"
)

// Ingester resolves a stream source and opens a live read positioned at
// "now". A source that does not exist yet fails fast rather than blocking.
type Ingester interface {
	Open(ctx context.Context, streamARN string) (io.ReadCloser, error)
}

type MediaIngester struct {
	cfg    aws.Config
	videos *kinesisvideo.Client
}

func NewMediaIngester(cfg aws.Config) *MediaIngester {
	return &MediaIngester{
		cfg:    cfg,
		videos: kinesisvideo.NewFromConfig(cfg),
	}
}

func (m *MediaIngester) Open(
	ctx context.Context,
	streamARN string,
) (io.ReadCloser, error) {
	endpoint, err := m.videos.GetDataEndpoint(
		ctx,
		&kinesisvideo.GetDataEndpointInput{
			APIName:   kvtypes.APINameGetMedia,
			StreamARN: aws.String(streamARN),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("resolve media endpoint: %w", err)
	}

	media := kinesisvideomedia.NewFromConfig(
		m.cfg,
		func(o *kinesisvideomedia.Options) {
			o.BaseEndpoint = endpoint.DataEndpoint
		},
	)

	out, err := media.GetMedia(ctx, &kinesisvideomedia.GetMediaInput{
		StreamARN: aws.String(streamARN),
		StartSelector: &kvmtypes.StartSelector{
			StartSelectorType: kvmtypes.StartSelectorTypeNow,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open media stream: %w", err)
	}

	return out.Payload, nil
}
