// Package main provides the forester CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"forester/internal/index"
	"forester/internal/repo"
)

// Exit codes, stable for scripting.
const (
	exitOK       = 0
	exitUsage    = 1
	exitState    = 2
	exitHook     = 3
	exitConflict = 4
)

var rootCmd = &cobra.Command{
	Use:           "forester",
	Short:         "Content-addressed version control for 3D asset projects",
	Long:          `Forester tracks project files, meshes and textures in a content-addressed store under .DFM/, with branches, stashes, file locks and review records.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Create a repository",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInit,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show working-tree changes against HEAD",
	RunE:  runStatus,
}

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Snapshot the working set onto the current branch",
	RunE:  runCommit,
}

var logCmd = &cobra.Command{
	Use:   "log [branch]",
	Short: "List a branch's commits oldest first",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLog,
}

var showCmd = &cobra.Command{
	Use:   "show <commit>",
	Short: "Show a commit's metadata",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var checkoutCmd = &cobra.Command{
	Use:   "checkout <branch-or-commit>",
	Short: "Reconstruct the working directory from a branch or commit",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheckout,
}

var branchCmd = &cobra.Command{
	Use:   "branch",
	Short: "Branch commands",
	RunE:  runBranchList,
}

var branchCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a branch at the current (or named) tip",
	Args:  cobra.ExactArgs(1),
	RunE:  runBranchCreate,
}

var branchSwitchCmd = &cobra.Command{
	Use:   "switch <name>",
	Short: "Point HEAD at a branch without touching files",
	Args:  cobra.ExactArgs(1),
	RunE:  runBranchSwitch,
}

var branchDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a branch ref",
	Args:  cobra.ExactArgs(1),
	RunE:  runBranchDelete,
}

var branchRenameCmd = &cobra.Command{
	Use:   "rename <old> <new>",
	Short: "Rename a branch",
	Args:  cobra.ExactArgs(2),
	RunE:  runBranchRename,
}

var stashCmd = &cobra.Command{
	Use:   "stash",
	Short: "Stash commands",
	RunE:  runStashList,
}

var stashCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Save the dirty working set and restore HEAD",
	RunE:  runStashCreate,
}

var stashApplyCmd = &cobra.Command{
	Use:   "apply <hash>",
	Short: "Check a stash's tree back out",
	Args:  cobra.ExactArgs(1),
	RunE:  runStashApply,
}

var stashDeleteCmd = &cobra.Command{
	Use:   "delete <hash>",
	Short: "Drop a stash record",
	Args:  cobra.ExactArgs(1),
	RunE:  runStashDelete,
}

var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Tag commands",
	RunE:  runTagList,
}

var tagCreateCmd = &cobra.Command{
	Use:   "create <name> [commit]",
	Short: "Tag a commit (HEAD by default)",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runTagCreate,
}

var tagShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Print the commit a tag points at",
	Args:  cobra.ExactArgs(1),
	RunE:  runTagShow,
}

var tagDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a tag",
	Args:  cobra.ExactArgs(1),
	RunE:  runTagDelete,
}

var lockCmd = &cobra.Command{
	Use:   "lock <path>",
	Short: "Lock a file on a branch",
	Args:  cobra.ExactArgs(1),
	RunE:  runLock,
}

var unlockCmd = &cobra.Command{
	Use:   "unlock <path>",
	Short: "Release a file lock",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnlock,
}

var locksCmd = &cobra.Command{
	Use:   "locks",
	Short: "List live locks",
	RunE:  runLocks,
}

var commentCmd = &cobra.Command{
	Use:   "comment <asset-hash> <text>",
	Short: "Attach a review note to an asset",
	Args:  cobra.ExactArgs(2),
	RunE:  runComment,
}

var commentsCmd = &cobra.Command{
	Use:   "comments <asset-hash>",
	Short: "List an asset's review notes",
	Args:  cobra.ExactArgs(1),
	RunE:  runComments,
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <comment-id>",
	Short: "Mark a review note resolved",
	Args:  cobra.ExactArgs(1),
	RunE:  runResolve,
}

var approveCmd = &cobra.Command{
	Use:   "approve <asset-hash>",
	Short: "Record a review verdict for an asset",
	Args:  cobra.ExactArgs(1),
	RunE:  runApprove,
}

var approvalsCmd = &cobra.Command{
	Use:   "approvals <asset-hash>",
	Short: "List current verdicts for an asset",
	Args:  cobra.ExactArgs(1),
	RunE:  runApprovals,
}

var deleteCommitCmd = &cobra.Command{
	Use:   "delete-commit <commit>",
	Short: "Remove a commit from the index, leaving its objects for gc",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeleteCommit,
}

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Delete objects unreachable from branches, tags and stashes",
	RunE:  runGC,
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Reconstruct the metadata index from the object store",
	RunE:  runRebuild,
}

var (
	forceFlag       bool
	noVerifyFlag    bool
	messageFlag     string
	authorFlag      string
	screenshotFlag  string
	noLockFlag      bool
	fullFlag        bool
	verboseFlag     bool
	patternFlags    []string
	meshFlags       []string
	fromFlag        string
	branchFlag      string
	userFlag        string
	lockTypeFlag    string
	ttlFlag         time.Duration
	allFlag         bool
	assetTypeFlag   string
	statusFlag      string
	verdictNoteFlag string
	dryRunFlag      bool
	noBackupFlag    bool
)

func init() {
	initCmd.Flags().BoolVar(&forceFlag, "force", false, "Recreate an existing repository")

	commitCmd.Flags().StringVarP(&messageFlag, "message", "m", "", "Commit message")
	commitCmd.Flags().StringVar(&authorFlag, "author", "", "Commit author (defaults to config)")
	commitCmd.Flags().StringVar(&screenshotFlag, "screenshot", "", "Image file to link into the commit")
	commitCmd.Flags().BoolVar(&noVerifyFlag, "no-verify", false, "Skip the pre-commit hook")
	commitCmd.Flags().BoolVar(&noLockFlag, "no-lock-check", false, "Skip the lock conflict check")
	commitCmd.MarkFlagRequired("message")

	logCmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", false, "Show tree hashes and types")
	showCmd.Flags().BoolVar(&fullFlag, "full", false, "Include the file and texture lists")

	checkoutCmd.Flags().BoolVar(&forceFlag, "force", false, "Discard uncommitted changes")
	checkoutCmd.Flags().BoolVar(&noVerifyFlag, "no-verify", false, "Skip the pre-checkout hook")
	checkoutCmd.Flags().StringArrayVar(&patternFlags, "pattern", nil, "Restrict to matching file paths (repeatable)")
	checkoutCmd.Flags().StringArrayVar(&meshFlags, "mesh", nil, "Restrict to matching mesh names (repeatable)")

	branchCreateCmd.Flags().StringVar(&fromFlag, "from", "", "Source branch (defaults to HEAD)")
	branchDeleteCmd.Flags().BoolVar(&forceFlag, "force", false, "Allow deleting the current branch")
	branchCmd.AddCommand(branchCreateCmd, branchSwitchCmd, branchDeleteCmd, branchRenameCmd)

	stashCreateCmd.Flags().StringVarP(&messageFlag, "message", "m", "", "Stash message")
	stashApplyCmd.Flags().BoolVar(&forceFlag, "force", false, "Overwrite uncommitted changes")
	stashCmd.AddCommand(stashCreateCmd, stashApplyCmd, stashDeleteCmd)

	tagCmd.AddCommand(tagCreateCmd, tagShowCmd, tagDeleteCmd)

	lockCmd.Flags().StringVar(&branchFlag, "branch", "", "Branch (defaults to current)")
	lockCmd.Flags().StringVar(&userFlag, "user", "", "Lock owner (defaults to config author)")
	lockCmd.Flags().StringVar(&lockTypeFlag, "type", index.LockExclusive, "Lock type: exclusive or shared")
	lockCmd.Flags().DurationVar(&ttlFlag, "ttl", 0, "Lock lifetime (defaults to config)")
	unlockCmd.Flags().StringVar(&branchFlag, "branch", "", "Branch (defaults to current)")
	unlockCmd.Flags().StringVar(&userFlag, "user", "", "Lock owner (defaults to config author)")
	locksCmd.Flags().StringVar(&branchFlag, "branch", "", "Branch (defaults to current)")
	locksCmd.Flags().BoolVar(&allFlag, "all", false, "List locks on every branch")

	commentCmd.Flags().StringVar(&assetTypeFlag, "type", repo.AssetCommit, "Asset type: commit, mesh or blob")
	commentCmd.Flags().StringVar(&authorFlag, "author", "", "Comment author (defaults to config)")
	commentsCmd.Flags().StringVar(&assetTypeFlag, "type", repo.AssetCommit, "Asset type: commit, mesh or blob")
	approveCmd.Flags().StringVar(&assetTypeFlag, "type", repo.AssetCommit, "Asset type: commit, mesh or blob")
	approveCmd.Flags().StringVar(&userFlag, "user", "", "Approver (defaults to config author)")
	approveCmd.Flags().StringVar(&statusFlag, "status", index.ApprovalApproved, "Verdict: approved, rejected or pending")
	approveCmd.Flags().StringVar(&verdictNoteFlag, "comment", "", "Verdict note")
	approvalsCmd.Flags().StringVar(&assetTypeFlag, "type", repo.AssetCommit, "Asset type: commit, mesh or blob")

	deleteCommitCmd.Flags().BoolVar(&forceFlag, "force", false, "Delete a branch tip or tagged commit")
	gcCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Report without deleting")
	rebuildCmd.Flags().BoolVar(&noBackupFlag, "no-backup", false, "Skip backing up the old database")

	rootCmd.AddCommand(initCmd, statusCmd, commitCmd, logCmd, showCmd, checkoutCmd,
		branchCmd, stashCmd, tagCmd, lockCmd, unlockCmd, locksCmd,
		commentCmd, commentsCmd, resolveCmd, approveCmd, approvalsCmd,
		deleteCommitCmd, gcCmd, rebuildCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error onto the CLI's exit-code contract.
func exitCode(err error) int {
	var ambiguous *repo.AmbiguityError
	if errors.As(err, &ambiguous) {
		return exitState
	}
	switch repo.KindOf(err) {
	case "":
		return exitUsage
	case repo.KindHookRejected:
		return exitHook
	case repo.KindLockedFiles:
		return exitConflict
	default:
		return exitState
	}
}

func openRepo() (*repo.Repository, error) {
	return repo.Open(".")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := "."
	if len(args) == 1 {
		path = args[0]
	}
	r, err := repo.Init(path, forceFlag)
	if err != nil {
		return err
	}
	defer r.Close()
	fmt.Printf("Initialized repository in %s\n", r.DFMDir())
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	st, err := r.Status()
	if err != nil {
		return err
	}
	if st.Branch != "" {
		fmt.Printf("On branch %s\n", st.Branch)
	} else {
		fmt.Printf("HEAD detached at %s\n", short(st.Detached))
	}
	if st.Clean {
		fmt.Println("Working tree clean")
		return nil
	}
	for _, p := range st.Added {
		fmt.Printf("  added:     %s\n", p)
	}
	for _, p := range st.Modified {
		fmt.Printf("  modified:  %s\n", p)
	}
	for _, p := range st.Deleted {
		fmt.Printf("  deleted:   %s\n", p)
	}
	return nil
}

func runCommit(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	opts := repo.CommitOptions{
		Author:     authorFlag,
		CheckLocks: !noLockFlag,
		NoVerify:   noVerifyFlag,
	}
	if screenshotFlag != "" {
		shot, err := os.ReadFile(screenshotFlag)
		if err != nil {
			return fmt.Errorf("reading screenshot: %w", err)
		}
		opts.Screenshot = shot
	}

	hash, err := r.Commit(context.Background(), messageFlag, opts)
	if err != nil {
		return err
	}
	branch, _ := r.CurrentBranch()
	fmt.Printf("[%s %s] %s\n", branch, short(hash), messageFlag)
	return nil
}

func runLog(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	branch := ""
	if len(args) == 1 {
		branch = args[0]
	}
	commits, err := r.Log(branch)
	if err != nil {
		return err
	}
	if len(commits) == 0 {
		fmt.Println("No commits yet.")
		return nil
	}
	for _, c := range commits {
		ts := time.Unix(c.Timestamp, 0).Format("2006-01-02 15:04:05")
		fmt.Printf("%s  %s  %-12s  %s\n", short(c.Hash), ts, c.Author, c.Message)
		if verboseFlag {
			fmt.Printf("          type=%s tree=%s\n", c.Type, short(c.TreeHash))
		}
	}
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	info, err := r.Show(args[0], fullFlag)
	if err != nil {
		return err
	}
	c := info.Commit
	fmt.Printf("commit  %s\n", c.Hash)
	fmt.Printf("branch  %s\n", c.Branch)
	if c.Parent != "" {
		fmt.Printf("parent  %s\n", c.Parent)
	}
	fmt.Printf("author  %s\n", c.Author)
	fmt.Printf("date    %s\n", time.Unix(c.Timestamp, 0).Format(time.RFC1123))
	fmt.Printf("type    %s\n", c.Type)
	if c.ScreenshotHash != "" {
		fmt.Printf("shot    %s\n", short(c.ScreenshotHash))
	}
	fmt.Printf("\n    %s\n", c.Message)
	if fullFlag {
		if len(info.Files) > 0 {
			fmt.Println()
			for _, f := range info.Files {
				fmt.Printf("  %s  %8d  %s\n", short(f.BlobHash), f.Size, f.Path)
			}
		}
		for _, tex := range info.Textures {
			fmt.Printf("  texture %s\n", short(tex))
		}
	}
	return nil
}

func runCheckout(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	opts := repo.CheckoutOptions{
		Force:        forceFlag,
		NoVerify:     noVerifyFlag,
		FilePatterns: patternFlags,
		MeshNames:    meshFlags,
	}
	if err := r.Checkout(context.Background(), args[0], opts); err != nil {
		return err
	}
	fmt.Printf("Checked out %s\n", args[0])
	return nil
}

func runBranchList(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	branches, err := r.Branches()
	if err != nil {
		return err
	}
	current, err := r.CurrentBranch()
	if err != nil {
		return err
	}
	for _, b := range branches {
		marker := " "
		if b.Name == current {
			marker = "*"
		}
		tip := "(unborn)"
		if b.Tip != "" {
			tip = short(b.Tip)
		}
		fmt.Printf("%s %-24s %s\n", marker, b.Name, tip)
	}
	return nil
}

func runBranchCreate(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	if err := r.CreateBranch(args[0], fromFlag); err != nil {
		return err
	}
	fmt.Printf("Created branch %s\n", args[0])
	return nil
}

func runBranchSwitch(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	if err := r.SwitchBranch(args[0]); err != nil {
		return err
	}
	fmt.Printf("Switched to branch %s\n", args[0])
	return nil
}

func runBranchDelete(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	if err := r.DeleteBranch(args[0], forceFlag); err != nil {
		return err
	}
	fmt.Printf("Deleted branch %s\n", args[0])
	return nil
}

func runBranchRename(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	if err := r.RenameBranch(args[0], args[1]); err != nil {
		return err
	}
	fmt.Printf("Renamed branch %s to %s\n", args[0], args[1])
	return nil
}

func runStashList(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	stashes, err := r.Stashes()
	if err != nil {
		return err
	}
	if len(stashes) == 0 {
		fmt.Println("No stashes.")
		return nil
	}
	for _, s := range stashes {
		ts := time.Unix(s.Timestamp, 0).Format("2006-01-02 15:04:05")
		fmt.Printf("%s  %s  [%s]  %s\n", short(s.Hash), ts, s.Branch, s.Message)
	}
	return nil
}

func runStashCreate(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	hash, err := r.Stash(messageFlag)
	if err != nil {
		return err
	}
	fmt.Printf("Stashed working set as %s\n", short(hash))
	return nil
}

func runStashApply(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	if err := r.ApplyStash(args[0], forceFlag); err != nil {
		return err
	}
	fmt.Printf("Applied stash %s\n", short(args[0]))
	return nil
}

func runStashDelete(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	if err := r.DeleteStash(args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted stash %s\n", short(args[0]))
	return nil
}

func runTagList(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	tags, err := r.Tags()
	if err != nil {
		return err
	}
	if len(tags) == 0 {
		fmt.Println("No tags.")
		return nil
	}
	for _, t := range tags {
		fmt.Printf("%-24s %s\n", t.Name, short(t.Commit))
	}
	return nil
}

func runTagCreate(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	target := ""
	if len(args) == 2 {
		target = args[1]
	}
	if err := r.CreateTag(args[0], target); err != nil {
		return err
	}
	fmt.Printf("Created tag %s\n", args[0])
	return nil
}

func runTagShow(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	commit, err := r.GetTag(args[0])
	if err != nil {
		return err
	}
	fmt.Println(commit)
	return nil
}

func runTagDelete(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	if err := r.DeleteTag(args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted tag %s\n", args[0])
	return nil
}

func runLock(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	user := userFlag
	if user == "" {
		user = r.Config.Author
	}
	ok, err := r.LockFile(args[0], branchFlag, user, lockTypeFlag, ttlFlag)
	if err != nil {
		return err
	}
	if !ok {
		return repo.Errf(repo.KindLockedFiles, "%s is already locked", args[0])
	}
	fmt.Printf("Locked %s (%s)\n", args[0], lockTypeFlag)
	return nil
}

func runUnlock(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	user := userFlag
	if user == "" {
		user = r.Config.Author
	}
	ok, err := r.UnlockFile(args[0], branchFlag, user)
	if err != nil {
		return err
	}
	if !ok {
		return repo.Errf(repo.KindUnknownRef, "no lock on %s held by %s", args[0], user)
	}
	fmt.Printf("Unlocked %s\n", args[0])
	return nil
}

func runLocks(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	branch := branchFlag
	if allFlag {
		branch = "*"
	}
	locks, err := r.Locks(branch)
	if err != nil {
		return err
	}
	if len(locks) == 0 {
		fmt.Println("No locks.")
		return nil
	}
	for _, l := range locks {
		expiry := "never"
		if l.ExpiresAt > 0 {
			expiry = time.Unix(l.ExpiresAt, 0).Format("2006-01-02 15:04:05")
		}
		fmt.Printf("%-32s %-10s %-12s [%s] expires %s\n", l.FilePath, l.LockType, l.LockedBy, l.Branch, expiry)
	}
	return nil
}

func runComment(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	id, err := r.CommentOnAsset(index.CommentRow{
		AssetHash: args[0],
		AssetType: assetTypeFlag,
		Author:    authorFlag,
		Text:      args[1],
	})
	if err != nil {
		return err
	}
	fmt.Printf("Comment %d added\n", id)
	return nil
}

func runComments(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	comments, err := r.Comments(args[0], assetTypeFlag)
	if err != nil {
		return err
	}
	if len(comments) == 0 {
		fmt.Println("No comments.")
		return nil
	}
	for _, c := range comments {
		state := " "
		if c.Resolved {
			state = "x"
		}
		fmt.Printf("[%s] #%d %s: %s\n", state, c.ID, c.Author, c.Text)
	}
	return nil
}

func runResolve(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	var id int64
	if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
		return fmt.Errorf("invalid comment id %q", args[0])
	}
	if err := r.ResolveComment(id); err != nil {
		return err
	}
	fmt.Printf("Resolved comment %d\n", id)
	return nil
}

func runApprove(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	err = r.ApproveAsset(index.ApprovalRow{
		AssetHash: args[0],
		AssetType: assetTypeFlag,
		Approver:  userFlag,
		Status:    statusFlag,
		Comment:   verdictNoteFlag,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Recorded %s for %s\n", statusFlag, short(args[0]))
	return nil
}

func runApprovals(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	approvals, err := r.Approvals(args[0], assetTypeFlag)
	if err != nil {
		return err
	}
	if len(approvals) == 0 {
		fmt.Println("No approvals.")
		return nil
	}
	for _, a := range approvals {
		note := ""
		if a.Comment != "" {
			note = " (" + a.Comment + ")"
		}
		fmt.Printf("%-12s %s%s\n", a.Approver, a.Status, note)
	}
	return nil
}

func runDeleteCommit(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	if err := r.DeleteCommit(args[0], forceFlag); err != nil {
		return err
	}
	fmt.Printf("Deleted commit %s\n", short(args[0]))
	return nil
}

func runGC(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	stats, err := r.GC(dryRunFlag)
	if err != nil {
		return err
	}
	verb := "Deleted"
	if dryRunFlag {
		verb = "Would delete"
	}
	fmt.Printf("%s %d commits, %d trees, %d blobs, %d meshes, %d textures (%d bytes)\n",
		verb, stats.CommitsDeleted, stats.TreesDeleted, stats.BlobsDeleted,
		stats.MeshesDeleted, stats.TexturesDeleted, stats.BytesFreed)
	return nil
}

func runRebuild(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	stats, err := r.Rebuild(!noBackupFlag)
	if err != nil {
		return err
	}
	fmt.Printf("Recovered %d commits, %d trees, %d meshes, %d textures, %d branches (%d skipped)\n",
		stats.Commits, stats.Trees, stats.Meshes, stats.Textures, stats.Branches, stats.Skipped)
	return nil
}

func short(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
