// Command facectl administers the facepass enrollment gallery over the
// REST API.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	serverURL string
	apiKey    string
)

func main() {
	root := &cobra.Command{
		Use:           "facectl",
		Short:         "Manage the facepass enrollment gallery",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8000", "facepass API base URL")
	root.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key (X-API-Key header)")

	root.AddCommand(enrollCmd(), facesCmd(), deleteCmd(), resetCmd(), recognizeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func enrollCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enroll <student-id> <image-or-dir>...",
		Short: "Enroll face images for a student",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			studentID := args[0]

			var files []string
			for _, arg := range args[1:] {
				info, err := os.Stat(arg)
				if err != nil {
					return err
				}
				if info.IsDir() {
					entries, err := os.ReadDir(arg)
					if err != nil {
						return err
					}
					for _, e := range entries {
						name := strings.ToLower(e.Name())
						if !e.IsDir() && (strings.HasSuffix(name, ".jpg") ||
							strings.HasSuffix(name, ".jpeg") || strings.HasSuffix(name, ".png")) {
							files = append(files, filepath.Join(arg, e.Name()))
						}
					}
				} else {
					files = append(files, arg)
				}
			}
			if len(files) == 0 {
				return fmt.Errorf("no images found")
			}

			bar := progressbar.Default(int64(len(files)), "enrolling")
			enrolled, failed := 0, 0
			for _, path := range files {
				if err := enrollOne(studentID, path); err != nil {
					fmt.Fprintf(os.Stderr, "\n%s: %v\n", path, err)
					failed++
				} else {
					enrolled++
				}
				_ = bar.Add(1)
			}

			fmt.Printf("enrolled %d face(s), %d failed\n", enrolled, failed)
			if failed > 0 && enrolled == 0 {
				return fmt.Errorf("all enrollments failed")
			}
			return nil
		},
	}
}

func enrollOne(studentID, path string) error {
	body, contentType, err := imageForm(path)
	if err != nil {
		return err
	}

	resp, err := doRequest(http.MethodPost,
		fmt.Sprintf("/v1/students/%s/faces", studentID), body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return apiError(resp)
	}
	return nil
}

func facesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "faces <student-id>",
		Short: "List a student's enrolled faces",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := doRequest(http.MethodGet,
				fmt.Sprintf("/v1/students/%s/faces", args[0]), nil, "")
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return apiError(resp)
			}
			return printJSON(resp.Body)
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <student-id>",
		Short: "Delete all enrolled faces for a student",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := doRequest(http.MethodDelete,
				fmt.Sprintf("/v1/students/%s/faces", args[0]), nil, "")
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return apiError(resp)
			}
			return printJSON(resp.Body)
		},
	}
}

func resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reload the gallery and clear live session state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := doRequest(http.MethodPost, "/v1/reset", nil, "")
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return apiError(resp)
			}
			return printJSON(resp.Body)
		},
	}
}

func recognizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recognize <image>",
		Short: "Recognize the face in a still image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, contentType, err := imageForm(args[0])
			if err != nil {
				return err
			}

			resp, err := doRequest(http.MethodPost, "/v1/recognize", body, contentType)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return apiError(resp)
			}
			return printJSON(resp.Body)
		},
	}
}

func imageForm(path string) (io.Reader, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("image", filepath.Base(path))
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}

	return &buf, w.FormDataContentType(), nil
}

func doRequest(method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequest(method, strings.TrimRight(serverURL, "/")+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	client := &http.Client{Timeout: 60 * time.Second}
	return client.Do(req)
}

func apiError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		return fmt.Errorf("%s: %s", resp.Status, payload.Error)
	}
	return fmt.Errorf("%s", resp.Status)
}

func printJSON(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		fmt.Println(string(data))
		return nil
	}
	fmt.Println(out.String())
	return nil
}
