// Command flowctl is the operator CLI for a flowmr cluster: submit jobs,
// poll status, stream progress, and fetch results. Grounded on the
// pack's Cobra-based CLI shape (ChuLiYu-raft-recovery's
// internal/cli.BuildCLI: a root command with global flags plus one
// subcommand per operation, each owning its own flag set).
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/AmiBuch/flowmr/internal/rpc"
)

var schedulerURL string

func main() {
	if err := buildCLI().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func buildCLI() *cobra.Command {
	root := &cobra.Command{
		Use:   "flowctl",
		Short: "Operate a flowmr MapReduce cluster",
	}
	root.PersistentFlags().StringVar(&schedulerURL, "scheduler", "http://localhost:8090", "scheduler base URL")

	root.AddCommand(buildSubmitCommand())
	root.AddCommand(buildStatusCommand())
	root.AddCommand(buildUploadCommand())
	root.AddCommand(buildResultsCommand())

	return root
}

func buildSubmitCommand() *cobra.Command {
	var input, output, mapperRef, reducerRef string
	var m, r int
	var follow bool

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a MapReduce job",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := rpc.SubmitJobRequest{
				InputPath: input, OutputPath: output,
				MapperRef: mapperRef, ReducerRef: reducerRef,
				M: m, R: r,
			}
			var resp rpc.SubmitJobResponse
			if err := postJSON("/jobs", req, &resp); err != nil {
				return err
			}
			fmt.Println(resp.JobID)
			if follow {
				return streamJob(resp.JobID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "input blob path (required)")
	cmd.Flags().StringVar(&output, "output", "", "output directory path (required)")
	cmd.Flags().StringVar(&mapperRef, "mapper", "wordcount", "registered mapper name")
	cmd.Flags().StringVar(&reducerRef, "reducer", "wordcount", "registered reducer name")
	cmd.Flags().IntVar(&m, "num-maps", 1, "number of map tasks")
	cmd.Flags().IntVar(&r, "num-reduces", 1, "number of reduce tasks")
	cmd.Flags().BoolVar(&follow, "follow", false, "stream job progress until completion")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func buildStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <job_id>",
		Short: "Show a job's current status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp rpc.JobStatusResponse
			if err := getJSON("/jobs/"+args[0], &resp); err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}
}

func buildUploadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <local> <remote>",
		Short: "Upload a local file to the cluster's blob store",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			u := schedulerURL + "/blobs/" + args[1]
			req, err := http.NewRequest(http.MethodPost, u, f)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode >= 300 {
				body, _ := io.ReadAll(resp.Body)
				return fmt.Errorf("upload failed: status %d: %s", resp.StatusCode, body)
			}
			fmt.Println("uploaded")
			return nil
		},
	}
}

func buildResultsCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "results <job_id> <output_path>",
		Short: "Print a job's reduce output",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			u := schedulerURL + "/jobs/" + args[0] + "/results?output_path=" + url.QueryEscape(args[1])
			resp, err := http.Get(u)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode >= 300 {
				body, _ := io.ReadAll(resp.Body)
				return fmt.Errorf("results failed: status %d: %s", resp.StatusCode, body)
			}
			scanner := bufio.NewScanner(resp.Body)
			n := 0
			for scanner.Scan() {
				if limit > 0 && n >= limit {
					break
				}
				fmt.Println(scanner.Text())
				n++
			}
			return scanner.Err()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of lines to print (0 = no limit)")
	return cmd
}

func streamJob(jobID string) error {
	u, err := url.Parse(schedulerURL)
	if err != nil {
		return err
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = "/jobs/" + jobID + "/stream"

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	for {
		var event rpc.JobEvent
		if err := conn.ReadJSON(&event); err != nil {
			return nil
		}
		buf, _ := json.Marshal(event)
		fmt.Println(string(buf))
		if event.Kind == "job_phase" && (event.Phase == "Completed" || event.Phase == "Failed") {
			return nil
		}
	}
}

func postJSON(path string, body, out interface{}) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := http.Post(schedulerURL+path, "application/json", bytes.NewReader(buf))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, b)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func getJSON(path string, out interface{}) error {
	resp, err := http.Get(schedulerURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, b)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
