package cmd

import (
	"context"
	"fmt"
	"log"

	"TrackForge/config"
	"TrackForge/storage"

	"github.com/minio/minio-go/v7"
	"github.com/spf13/cobra"
)

var minioPrefix string

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "Inspect the MinIO bucket",
	Long:  `Connect to MinIO and list stored objects, optionally filtered by prefix (audio/, mixes/).`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Connecting to MinIO...")

		cfg := config.Load()
		fmt.Printf("MinIO config: %s, bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		if err := storage.InitMinio(cfg); err != nil {
			log.Fatalf("Failed to connect to MinIO: %v", err)
		}
		fmt.Println("MinIO connection successful!")

		client := storage.GetMinioClient()
		ctx := context.Background()

		var totalCount int
		var totalSize int64
		for object := range client.ListObjects(ctx, cfg.MinioBucket, minio.ListObjectsOptions{
			Prefix:    minioPrefix,
			Recursive: true,
		}) {
			if object.Err != nil {
				log.Fatalf("Failed to list objects: %v", object.Err)
			}
			fmt.Printf("%10d  %s\n", object.Size, object.Key)
			totalCount++
			totalSize += object.Size
		}

		fmt.Printf("\n%d objects, %.2f MB total\n", totalCount, float64(totalSize)/(1024*1024))
	},
}

func init() {
	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "", "object prefix to list")
	rootCmd.AddCommand(minioCmd)
}
